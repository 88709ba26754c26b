package flight

// Thresholds is the calibrated reference bundle used by FallProtect.
// Baseline is the at-rest squared acceleration magnitude, Escape the one
// observed where thrust first overcomes gravity. A zero reference
// disables the branches derived from it.
type Thresholds struct {
	Baseline int
	Base30   int
	Base60   int
	Base80   int
	Base90   int

	Escape    int
	Escape110 int
	Escape130 int
}

// NewThresholds derives every fractional threshold from the two references.
func NewThresholds(baseline, escape int) Thresholds {
	return Thresholds{
		Baseline:  baseline,
		Base30:    percent(baseline, 30),
		Base60:    percent(baseline, 60),
		Base80:    percent(baseline, 80),
		Base90:    percent(baseline, 90),
		Escape:    escape,
		Escape110: percent(escape, 110),
		Escape130: percent(escape, 130),
	}
}

// Complete reports whether both references have been calibrated.
func (t Thresholds) Complete() bool {
	return t.Baseline > 0 && t.Escape > 0
}

func percent(v, pct int) int {
	return v * pct / 100
}
