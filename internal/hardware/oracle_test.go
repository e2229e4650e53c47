package hardware

import "testing"

func TestNewStaticReportsBelowCeilingTemperature(t *testing.T) {
	o := NewStatic(DefaultLimits)
	temp, err := o.CurrentTemperatureC()
	if err != nil {
		t.Fatalf("CurrentTemperatureC: %v", err)
	}
	if temp >= o.Limits().ThermalCeiling {
		t.Fatalf("expected default temperature below ceiling, got %f >= %f", temp, o.Limits().ThermalCeiling)
	}
}

func TestNewStaticWithTemperatureOverridesReading(t *testing.T) {
	o := NewStaticWithTemperature(DefaultLimits, 95.0)
	temp, err := o.CurrentTemperatureC()
	if err != nil {
		t.Fatalf("CurrentTemperatureC: %v", err)
	}
	if temp != 95.0 {
		t.Fatalf("expected overridden temperature 95.0, got %f", temp)
	}
	if temp <= o.Limits().ThermalCeiling {
		t.Fatalf("expected over-ceiling reading for test scenario")
	}
}

func TestLimitsAreStable(t *testing.T) {
	o := NewStatic(Limits{MaxVRAMMB: 8000, MaxPowerW: 200, ThermalCeiling: 80})
	l1 := o.Limits()
	l2 := o.Limits()
	if l1 != l2 {
		t.Fatalf("expected stable limits across calls, got %+v then %+v", l1, l2)
	}
}
