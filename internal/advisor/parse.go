package advisor

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"defi-position-manager/internal/types"
)

// extractObject returns the first balanced top-level JSON object in
// text. Oracle output often wraps the object in prose or code fences, so
// the scan is brace-depth based and string-aware rather than a naive
// first-to-last-brace slice.
func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseRecommendation applies the validation protocol to raw oracle
// output. It never fails: every malformed or ambiguous response
// collapses to the safe no-op recommendation, with the cause in Reason.
func ParseRecommendation(raw string) types.Recommendation {
	obj, ok := extractObject(raw)
	if !ok {
		return types.SafeDefault("parse error: no JSON object in oracle output")
	}

	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return types.SafeDefault("parse error: " + err.Error())
	}

	action, ok := stringField(fields, "action")
	if !ok {
		return types.SafeDefault("parse error: missing action")
	}
	reason, ok := stringField(fields, "reason")
	if !ok {
		return types.SafeDefault("parse error: missing reason")
	}
	confidence, ok := numberField(fields, "confidence")
	if !ok {
		return types.SafeDefault("parse error: missing confidence")
	}

	act := types.Action(strings.ToLower(strings.TrimSpace(action)))
	if !act.Valid() {
		return types.SafeDefault("parse error: unrecognized action " + action)
	}

	rec := types.Recommendation{
		Action:     act,
		Reason:     reason,
		Confidence: normalizeConfidence(confidence),
	}
	if !act.RequiresFunds() {
		return rec
	}

	asset, ok := stringField(fields, "asset")
	if !ok || asset == "" {
		return types.SafeDefault("parse error: missing asset for " + string(act))
	}
	amountRaw, ok := fields["amount"]
	if !ok {
		return types.SafeDefault("parse error: missing amount for " + string(act))
	}
	amount, err := toDecimal(amountRaw)
	if err != nil {
		return types.SafeDefault("parse error: invalid amount for " + string(act))
	}
	if amount.IsNegative() {
		return types.SafeDefault("parse error: negative amount for " + string(act))
	}

	rec.Asset = asset
	rec.Amount = amount
	return rec
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func numberField(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, errNotANumber
	}
}

var errNotANumber = errors.New("not a number")

// normalizeConfidence clamps out-of-range confidence to zero rather than
// trusting it.
func normalizeConfidence(f float64) int {
	c := int(f)
	if c < 0 || c > 100 {
		return 0
	}
	return c
}
