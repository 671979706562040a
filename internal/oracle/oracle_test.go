package oracle_test

import (
	"errors"
	"testing"

	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
)

func validData() *oracle.PriceData {
	return &oracle.PriceData{
		Price:      num.BN(100_000_000),
		Confidence: num.BN(10_000),
		Delay:      1,
		HasEnough:  true,
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := oracle.Validate(validData(), oracle.DefaultGuards(), num.BN(100_000_000)); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
	// No TWAP history skips the divergence guard.
	if err := oracle.Validate(validData(), oracle.DefaultGuards(), nil); err != nil {
		t.Errorf("valid record without twap rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	guards := oracle.DefaultGuards()

	tests := []struct {
		name   string
		mutate func(*oracle.PriceData)
		twap   int64
	}{
		{"stale delay", func(d *oracle.PriceData) { d.Delay = guards.MaxDelay + 1 }, 100_000_000},
		{"thin publishers", func(d *oracle.PriceData) { d.HasEnough = false }, 100_000_000},
		{"non-positive price", func(d *oracle.PriceData) { d.Price = num.BN(0) }, 100_000_000},
		{"wide confidence", func(d *oracle.PriceData) { d.Confidence = num.BN(30_000_000) }, 100_000_000},
		{"twap divergence", func(d *oracle.PriceData) {}, 10_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			tt.mutate(data)
			err := oracle.Validate(data, guards, num.BN(tt.twap))
			if !errors.Is(err, oracle.ErrStaleOracle) {
				t.Errorf("Validate error = %v, want ErrStaleOracle", err)
			}
		})
	}

	if err := oracle.Validate(nil, guards, nil); !errors.Is(err, oracle.ErrStaleOracle) {
		t.Errorf("nil data error = %v, want ErrStaleOracle", err)
	}
}

func TestValidateNonPositiveTolerated(t *testing.T) {
	guards := oracle.DefaultGuards()
	guards.NonPositiveFatal = false
	data := validData()
	data.Price = num.BN(0)

	// With the fatal guard off, a zero price falls through to the
	// confidence check instead.
	err := oracle.Validate(data, guards, nil)
	if err == nil {
		t.Error("zero price with nonzero confidence validated")
	}
}

func TestConfidenceBps(t *testing.T) {
	bps, err := oracle.ConfidenceBps(validData())
	if err != nil {
		t.Fatalf("ConfidenceBps: %v", err)
	}
	if bps != 1 {
		t.Errorf("confidence = %d bps, want 1", bps)
	}

	wide := validData()
	wide.Confidence = num.BN(5_000_000)
	bps, err = oracle.ConfidenceBps(wide)
	if err != nil {
		t.Fatalf("ConfidenceBps: %v", err)
	}
	if bps != 500 {
		t.Errorf("confidence = %d bps, want 500", bps)
	}
}

func TestConfidencePct(t *testing.T) {
	pct, err := oracle.ConfidencePct(validData(), num.BN(100_000_000))
	if err != nil {
		t.Fatalf("ConfidencePct: %v", err)
	}
	if pct.Cmp(num.BN(100)) != 0 {
		t.Errorf("confidence pct = %s, want 100", pct)
	}
}
