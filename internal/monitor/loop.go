package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"defi-position-manager/internal/auditlog"
	"defi-position-manager/internal/executor"
	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/signals"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
)

// tickError records the loop state at the point of failure. The
// deferred transition to sleeping runs before the caller sees the
// error, so the failing state must travel with it.
type tickError struct {
	State State
	Cause error
}

func (e *tickError) Error() string {
	return fmt.Sprintf("tick failed while %s: %v", e.State, e.Cause)
}

func (e *tickError) Unwrap() error { return e.Cause }

// Loop runs the monitor cycle: aggregate signals, ask the advisor,
// execute the recommendation, sleep. One tick at a time; a failed tick
// is logged and the next tick starts from clean state.
type Loop struct {
	aggregator *signals.Aggregator
	advisor    interfaces.Advisor
	executor   interfaces.Executor
	interval   time.Duration
	state      State
}

func New(aggregator *signals.Aggregator, advisor interfaces.Advisor, exec interfaces.Executor, interval time.Duration) *Loop {
	return &Loop{
		aggregator: aggregator,
		advisor:    advisor,
		executor:   exec,
		interval:   interval,
		state:      StateIdle,
	}
}

// State returns the loop's current position in the tick cycle.
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) transition(ctx context.Context, to State) {
	if !CanTransition(l.state, to) {
		logger.Warn(ctx, "Unexpected state transition", "from", string(l.state), "to", string(to))
	}
	l.state = to
}

// Tick runs one full monitor cycle. The loop always lands in sleeping,
// whether the tick completed, was cut short by a guard rejection, or
// failed outright.
func (l *Loop) Tick(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "monitor.Tick")
	defer span.End()
	defer l.transition(ctx, StateSleeping)

	l.transition(ctx, StateAggregating)
	input, err := l.aggregator.BuildInput(ctx)
	if err != nil {
		return &tickError{State: StateAggregating, Cause: fmt.Errorf("aggregate signals: %w", err)}
	}

	logger.Info(ctx, "Tick snapshot",
		"health_factor", input.Position.HealthFactor.String(),
		"total_debt", input.Position.TotalDebt.String(),
		"pairs", len(input.Prices),
	)

	l.transition(ctx, StateDeciding)
	rec := l.advisor.Recommend(ctx, input)

	if err := auditlog.AppendDecision(auditlog.DecisionEntry{
		Action:       string(rec.Action),
		Asset:        rec.Asset,
		Amount:       rec.Amount.String(),
		Reason:       rec.Reason,
		Confidence:   rec.Confidence,
		HealthFactor: input.Position.HealthFactor.String(),
	}); err != nil {
		logger.Warn(ctx, "Failed to append decision audit entry", "error", err.Error())
	}

	if rec.Action == types.ActionNone {
		logger.Info(ctx, "No corrective action this tick", "reason", rec.Reason)
		return nil
	}

	l.transition(ctx, StateExecuting)
	txID, execErr := l.executor.Execute(ctx, rec)

	entry := auditlog.ExecutionEntry{
		Action: string(rec.Action),
		Asset:  rec.Asset,
		Amount: rec.Amount.String(),
		TxID:   txID,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}
	if err := auditlog.AppendExecution(entry); err != nil {
		logger.Warn(ctx, "Failed to append execution audit entry", "error", err.Error())
	}

	if errors.Is(execErr, executor.ErrUnsafeAction) {
		// A guard rejection is a correct outcome, not a tick failure.
		logger.Warn(ctx, "Recommendation rejected by safety guard",
			"action", string(rec.Action),
			"asset", rec.Asset,
			"amount", rec.Amount.String(),
		)
		return nil
	}
	if execErr != nil {
		return &tickError{State: StateExecuting, Cause: fmt.Errorf("execute recommendation: %w", execErr)}
	}

	return nil
}

// Run ticks immediately, then on every interval until ctx is canceled.
// Tick errors are logged and swallowed so a bad tick never stops the
// monitor.
func (l *Loop) Run(ctx context.Context) {
	logger.Info(ctx, "Monitor loop starting", "interval", l.interval.String())

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Monitor loop stopping", "reason", ctx.Err().Error())
			return
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

func (l *Loop) runTick(ctx context.Context) {
	// Each tick gets at most one interval to finish. A stalled RPC node
	// or oracle endpoint fails the tick instead of suspending the loop.
	tctx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	start := time.Now()
	if err := l.Tick(tctx); err != nil {
		state := StateSleeping
		var te *tickError
		if errors.As(err, &te) {
			state = te.State
		}
		logger.ErrorWithErr(ctx, "Tick failed", err,
			"state", string(state),
			"tick_started", start.UTC().Format(time.RFC3339),
		)
	}
}
