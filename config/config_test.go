package config

import "testing"

func TestValidateSuccess(t *testing.T) {
	cfg := StrategyOptions{
		PyramidingEnabled:  true,
		MaxAdditionalUnits: 2,
		StopLossPct:        0.02,
		ProfitTargetPct:    0.03,
		MaxHoldingBars:     20,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateFailsOnAdditionalUnitsWithoutPyramiding(t *testing.T) {
	cfg := StrategyOptions{
		PyramidingEnabled:  false,
		MaxAdditionalUnits: 2,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for MaxAdditionalUnits without pyramiding")
	}
}

func TestValidateFailsOnNegativeMaxHoldingBars(t *testing.T) {
	cfg := DefaultStrategyOptions()
	cfg.MaxHoldingBars = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative MaxHoldingBars")
	}
}

func TestCanPyramid(t *testing.T) {
	cfg := StrategyOptions{PyramidingEnabled: true, MaxAdditionalUnits: 2}
	cases := []struct {
		open int
		want bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
	}
	for _, c := range cases {
		if got := cfg.CanPyramid(c.open); got != c.want {
			t.Errorf("CanPyramid(%d) = %v, want %v", c.open, got, c.want)
		}
	}

	flat := StrategyOptions{PyramidingEnabled: false}
	if !flat.CanPyramid(0) {
		t.Error("CanPyramid(0) should always be true even without pyramiding")
	}
	if flat.CanPyramid(1) {
		t.Error("CanPyramid(1) should be false without pyramiding")
	}
}

func TestMaxSimultaneousUnits(t *testing.T) {
	flat := StrategyOptions{PyramidingEnabled: false}
	if got := flat.MaxSimultaneousUnits(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	pyr := StrategyOptions{PyramidingEnabled: true, MaxAdditionalUnits: 3}
	if got := pyr.MaxSimultaneousUnits(); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}
