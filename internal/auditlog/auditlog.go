package auditlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

// DecisionEntry is one oracle recommendation, recorded whether or not it
// was executed.
type DecisionEntry struct {
	Time         string
	Action       string
	Asset        string
	Amount       string
	Reason       string
	Confidence   int
	HealthFactor string
	Extra        map[string]any `json:"extra,omitempty"`
}

// ExecutionEntry is one completed (or refused) protocol action.
type ExecutionEntry struct {
	Time   string
	Action string
	Asset  string
	Amount string
	TxID   string
	Error  string         `json:"error,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func logDir() string {
	if v := os.Getenv("MANAGER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func decisionsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "decisions", t.UTC().Format("2006-01-02")+".txt")
}

func executionsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "executions", t.UTC().Format("2006-01-02")+".txt")
}

func appendLine(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// AppendDecision writes e to the daily decisions file as one JSON line.
func AppendDecision(e DecisionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().UTC()
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(decisionsFilepath(now), e)
}

// AppendExecution writes e to the daily executions file as one JSON line.
func AppendExecution(e ExecutionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().UTC()
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(executionsFilepath(now), e)
}

// CompressOlder gzips daily files older than retentionDays, keeping the
// audit trail without unbounded plaintext growth. Errors on individual
// files are skipped so one bad file never blocks the sweep.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}

		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()

		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
