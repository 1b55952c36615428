package advisor

import (
	"testing"

	"github.com/shopspring/decimal"

	"defi-position-manager/internal/types"
)

func assertSafeDefault(t *testing.T, rec types.Recommendation) {
	t.Helper()
	if rec.Action != types.ActionNone {
		t.Errorf("expected action none, got %s", rec.Action)
	}
	if rec.Confidence != 0 {
		t.Errorf("expected confidence 0, got %d", rec.Confidence)
	}
}

func TestParseObjectEmbeddedInProse(t *testing.T) {
	raw := `Here is my analysis: {"action":"repay_debt","asset":"USDC","amount":100,"reason":"low health","confidence":80}`

	rec := ParseRecommendation(raw)

	if rec.Action != types.ActionRepayDebt {
		t.Errorf("expected repay_debt, got %s", rec.Action)
	}
	if rec.Asset != "USDC" {
		t.Errorf("expected asset USDC, got %s", rec.Asset)
	}
	if !rec.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected amount 100, got %s", rec.Amount)
	}
	if rec.Reason != "low health" {
		t.Errorf("expected reason 'low health', got %q", rec.Reason)
	}
	if rec.Confidence != 80 {
		t.Errorf("expected confidence 80, got %d", rec.Confidence)
	}
}

func TestParseCodeFencedObject(t *testing.T) {
	raw := "```json\n{\"action\":\"add_collateral\",\"asset\":\"ETH\",\"amount\":0.5,\"reason\":\"buffer\",\"confidence\":70}\n```"

	rec := ParseRecommendation(raw)

	if rec.Action != types.ActionAddCollateral {
		t.Fatalf("expected add_collateral, got %s (reason %q)", rec.Action, rec.Reason)
	}
	if !rec.Amount.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("expected amount 0.5, got %s", rec.Amount)
	}
}

func TestParseMissingAmount(t *testing.T) {
	raw := `{"action":"borrow_more","asset":"USDC","reason":"room to borrow","confidence":60}`

	assertSafeDefault(t, ParseRecommendation(raw))
}

func TestParseMissingAsset(t *testing.T) {
	raw := `{"action":"withdraw_collateral","amount":1,"reason":"free capital","confidence":60}`

	assertSafeDefault(t, ParseRecommendation(raw))
}

func TestParseMissingRequiredKeys(t *testing.T) {
	for _, raw := range []string{
		`{"reason":"x","confidence":50}`,
		`{"action":"none","confidence":50}`,
		`{"action":"none","reason":"x"}`,
	} {
		assertSafeDefault(t, ParseRecommendation(raw))
	}
}

func TestParseNoObjectBoundaries(t *testing.T) {
	assertSafeDefault(t, ParseRecommendation("I think you should repay some debt."))
	assertSafeDefault(t, ParseRecommendation(""))
	assertSafeDefault(t, ParseRecommendation("unclosed { object"))
}

func TestParseUnrecognizedAction(t *testing.T) {
	raw := `{"action":"liquidate_everything","asset":"ETH","amount":1,"reason":"x","confidence":90}`

	assertSafeDefault(t, ParseRecommendation(raw))
}

func TestParseNegativeAmount(t *testing.T) {
	raw := `{"action":"repay_debt","asset":"USDC","amount":-5,"reason":"x","confidence":90}`

	assertSafeDefault(t, ParseRecommendation(raw))
}

func TestParseNoneNeedsNoAssetOrAmount(t *testing.T) {
	raw := `{"action":"none","reason":"position healthy","confidence":95}`

	rec := ParseRecommendation(raw)

	if rec.Action != types.ActionNone {
		t.Fatalf("expected none, got %s", rec.Action)
	}
	if rec.Confidence != 95 {
		t.Errorf("expected confidence 95, got %d", rec.Confidence)
	}
	if rec.Reason != "position healthy" {
		t.Errorf("expected reason preserved, got %q", rec.Reason)
	}
}

func TestParseOutOfRangeConfidence(t *testing.T) {
	raw := `{"action":"none","reason":"x","confidence":250}`

	rec := ParseRecommendation(raw)
	if rec.Confidence != 0 {
		t.Errorf("expected out-of-range confidence normalized to 0, got %d", rec.Confidence)
	}
}

func TestParseActionCaseInsensitive(t *testing.T) {
	raw := `{"action":"Repay_Debt","asset":"USDC","amount":10,"reason":"x","confidence":50}`

	rec := ParseRecommendation(raw)
	if rec.Action != types.ActionRepayDebt {
		t.Errorf("expected repay_debt, got %s", rec.Action)
	}
}

func TestExtractObjectIgnoresBracesInStrings(t *testing.T) {
	raw := `{"action":"none","reason":"watch the {braces} here","confidence":40}`

	rec := ParseRecommendation(raw)
	if rec.Action != types.ActionNone || rec.Confidence != 40 {
		t.Errorf("expected well-formed parse despite braces in string, got %+v", rec)
	}
}

func TestExtractObjectTakesFirstObject(t *testing.T) {
	raw := `{"action":"none","reason":"first","confidence":10} {"action":"borrow_more","asset":"ETH","amount":1,"reason":"second","confidence":99}`

	rec := ParseRecommendation(raw)
	if rec.Reason != "first" {
		t.Errorf("expected first object to win, got reason %q", rec.Reason)
	}
}
