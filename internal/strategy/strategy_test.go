package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vela/internal/domain"
	"vela/internal/series"
)

// ---------------------------------------------------------------------------
// Parameter validation
// ---------------------------------------------------------------------------

var testSchema = ParamSchema{
	"window":  {Type: TypeInt, Min: Bound(2), Max: Bound(100), Default: 20},
	"num_std": {Type: TypeFloat, Min: Bound(0.1), Default: 2.0},
	"ma_type": {Type: TypeString, Options: []string{"sma", "ema"}, Default: "sma"},
	"enabled": {Type: TypeBool, Default: true},
}

func TestValidateDefaultsMerged(t *testing.T) {
	p, err := testSchema.Validate("test", nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := p.Int("window"); got != 20 {
		t.Errorf("window = %d, want default 20", got)
	}
	if got := p.Float("num_std"); got != 2.0 {
		t.Errorf("num_std = %v, want default 2.0", got)
	}
	if got := p.String("ma_type"); got != "sma" {
		t.Errorf("ma_type = %q, want default sma", got)
	}
	if !p.Bool("enabled") {
		t.Error("enabled = false, want default true")
	}
}

func TestValidateNormalizesJSONNumbers(t *testing.T) {
	// JSON decoding yields float64 for every number; integral floats must be
	// accepted for int parameters.
	p, err := testSchema.Validate("test", map[string]any{"window": float64(50)})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := p.Int("window"); got != 50 {
		t.Errorf("window = %d, want 50", got)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	_, err := testSchema.Validate("test", map[string]any{
		"window":  1,      // below min
		"num_std": 0.01,   // below min
		"ma_type": "vwap", // not an option
		"bogus":   123,    // unknown name
	})
	if err == nil {
		t.Fatal("Validate() = nil error, want InvalidParameterError")
	}

	var ipe *InvalidParameterError
	if !errors.As(err, &ipe) {
		t.Fatalf("error type = %T, want *InvalidParameterError", err)
	}
	if len(ipe.Violations) != 4 {
		t.Fatalf("violations = %d, want 4: %v", len(ipe.Violations), ipe.Violations)
	}
	msg := err.Error()
	for _, want := range []string{"window", "num_std", "ma_type", "bogus"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestValidateRejectsFractionalInt(t *testing.T) {
	_, err := testSchema.Validate("test", map[string]any{"window": 2.5})
	if err == nil {
		t.Fatal("expected error for fractional int parameter")
	}
}

func TestValidateRejectsWrongTypes(t *testing.T) {
	_, err := testSchema.Validate("test", map[string]any{
		"ma_type": 7,
		"enabled": "yes",
	})
	var ipe *InvalidParameterError
	if !errors.As(err, &ipe) {
		t.Fatalf("error type = %T, want *InvalidParameterError", err)
	}
	if len(ipe.Violations) != 2 {
		t.Errorf("violations = %d, want 2: %v", len(ipe.Violations), ipe.Violations)
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

type stubStrategy struct {
	name   string
	params Params
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Evaluate(_ context.Context, _ *series.Window) ([]domain.Signal, error) {
	return nil, nil
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", Factory{
		Schema: testSchema,
		New: func(p Params) (Strategy, error) {
			return &stubStrategy{name: "stub", params: p}, nil
		},
	})

	s, err := r.Build("stub", map[string]any{"window": 42})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	stub := s.(*stubStrategy)
	if got := stub.params.Int("window"); got != 42 {
		t.Errorf("window = %d, want 42", got)
	}
	if got := stub.params.Float("num_std"); got != 2.0 {
		t.Errorf("num_std = %v, want default 2.0", got)
	}
}

func TestRegistryBuildUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Build("nope", nil); err == nil {
		t.Error("Build() of unknown strategy should fail")
	}
}

func TestRegistryBuildInvalidParams(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", Factory{
		Schema: testSchema,
		New: func(p Params) (Strategy, error) {
			return &stubStrategy{name: "stub", params: p}, nil
		},
	})

	_, err := r.Build("stub", map[string]any{"window": 0})
	var ipe *InvalidParameterError
	if !errors.As(err, &ipe) {
		t.Fatalf("error type = %T, want *InvalidParameterError", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("b-strategy", Factory{Schema: ParamSchema{}, New: nil})
	r.Register("a-strategy", Factory{Schema: ParamSchema{}, New: nil})

	got := r.List()
	if len(got) != 2 || got[0] != "a-strategy" || got[1] != "b-strategy" {
		t.Errorf("List() = %v, want sorted [a-strategy b-strategy]", got)
	}
}

// ---------------------------------------------------------------------------
// Sizing helpers
// ---------------------------------------------------------------------------

func TestRiskSize(t *testing.T) {
	// 2% of 10000 = 200 at risk, over a $4 stop -> 50 shares.
	if got := RiskSize(10000, 0.02, 4); got != 50 {
		t.Errorf("RiskSize = %v, want 50", got)
	}
	if got := RiskSize(10000, 0.02, 0); got != 0 {
		t.Errorf("RiskSize with zero stop = %v, want 0", got)
	}
}

func TestCapNotional(t *testing.T) {
	// 25% of 10000 at $50 -> max 50 shares.
	if got := CapNotional(100, 50, 10000, 0.25); got != 50 {
		t.Errorf("CapNotional = %v, want 50", got)
	}
	if got := CapNotional(30, 50, 10000, 0.25); got != 30 {
		t.Errorf("CapNotional below cap = %v, want 30", got)
	}
}
