// Package hardware supplies the HardwareOracle the Truth agent consults
// when verification_scope.check_hardware is set. Probing actual device
// state (VRAM, power draw, thermal sensors) is explicitly out of scope for
// the core; this package ships a static/configurable stand-in that real
// deployments wire up to whatever telemetry their host exposes.
package hardware

// Limits describes the ceilings the Truth agent checks declared
// requirements against.
type Limits struct {
	MaxVRAMMB      int
	MaxPowerW      int
	ThermalCeiling float64
}

// Oracle is the HardwareOracle external interface: current limits and
// instantaneous temperature reading.
type Oracle interface {
	Limits() Limits
	CurrentTemperatureC() (float64, error)
}

// Static is a fixed-value Oracle: limits and temperature are set once at
// construction and never change for the process lifetime. This is the only
// Oracle the core ships; hardware probing is wired up by the surrounding
// deployment, not the consensus core itself.
type Static struct {
	limits      Limits
	temperature float64
}

// DefaultLimits are conservative ceilings suitable for a single
// consumer-grade GPU host, used when no deployment-specific limits are
// configured.
var DefaultLimits = Limits{
	MaxVRAMMB:      24_000,
	MaxPowerW:      450,
	ThermalCeiling: 85.0,
}

// NewStatic builds an Oracle reporting limits and a fixed temperature
// reading below the thermal ceiling.
func NewStatic(limits Limits) *Static {
	return &Static{limits: limits, temperature: limits.ThermalCeiling * 0.6}
}

// NewStaticWithTemperature builds an Oracle reporting limits and an
// explicit current temperature, for exercising over-ceiling conditions in
// tests.
func NewStaticWithTemperature(limits Limits, temperatureC float64) *Static {
	return &Static{limits: limits, temperature: temperatureC}
}

func (s *Static) Limits() Limits { return s.limits }

func (s *Static) CurrentTemperatureC() (float64, error) { return s.temperature, nil }

var _ Oracle = (*Static)(nil)
