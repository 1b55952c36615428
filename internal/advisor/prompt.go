package advisor

import (
	"fmt"
	"sort"
	"strings"

	"defi-position-manager/internal/types"
)

// defaultSystemPrompt is used when no system prompt is configured.
const defaultSystemPrompt = "You are a financial advisor specialized in DeFi position management. " +
	"Analyze the provided market and position data and recommend actions to prevent liquidation. " +
	"Respond ONLY with a single JSON object."

// BuildPrompt renders the decision input into the fixed instruction
// payload sent to the oracle. The template is deterministic: pairs are
// emitted in sorted order, the permitted actions and the required
// response shape are always spelled out.
func BuildPrompt(input types.DecisionInput) string {
	var b strings.Builder

	b.WriteString("Analyze the following DeFi lending position and market conditions.\n\n")

	b.WriteString("Current Position:\n")
	fmt.Fprintf(&b, "- Total Collateral: %s\n", input.Position.TotalCollateral)
	fmt.Fprintf(&b, "- Total Debt: %s\n", input.Position.TotalDebt)
	fmt.Fprintf(&b, "- Available Borrow: %s\n", input.Position.AvailableBorrow)
	fmt.Fprintf(&b, "- Liquidation Threshold: %s\n", input.Position.LiquidationThreshold)
	fmt.Fprintf(&b, "- Loan-to-Value: %s\n", input.Position.LoanToValue)
	fmt.Fprintf(&b, "- Health Factor: %s\n", input.Position.HealthFactor)

	b.WriteString("\nMarket Data:\n")
	pairs := make([]string, 0, len(input.Prices))
	for pair := range input.Prices {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	for _, pair := range pairs {
		fmt.Fprintf(&b, "- %s: %s", pair, input.Prices[pair])
		if change, ok := input.PriceChanges[pair]; ok {
			fmt.Fprintf(&b, " (change: %s%%)", change.StringFixed(2))
		}
		if vol, ok := input.Volatility[pair]; ok {
			fmt.Fprintf(&b, " (volatility: %s%%)", vol.StringFixed(2))
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nParameters:\n")
	fmt.Fprintf(&b, "- Liquidation Threshold Buffer: %s\n", input.Thresholds.LiquidationBuffer)
	fmt.Fprintf(&b, "- Minimum Health Factor: %s\n", input.Thresholds.MinHealthFactor)

	b.WriteString(`
Recommend exactly one of the following actions:
1. add_collateral (specify asset and amount)
2. repay_debt (specify asset and amount)
3. withdraw_collateral (specify asset and amount)
4. borrow_more (specify asset and amount)
5. none

Respond with a JSON object of this exact shape:
{"action":"add_collateral|repay_debt|withdraw_collateral|borrow_more|none","asset":"ETH","amount":0.0,"reason":"your reasoning","confidence":85}
`)

	return b.String()
}
