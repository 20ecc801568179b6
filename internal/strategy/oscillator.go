package strategy

// OscillatorState holds the overbought/oversold classification of the
// previous period. Both flags read false until the first observation.
type OscillatorState struct {
	known      bool
	overbought bool
	oversold   bool
}

// Observe classifies value against the two levels. The zones are disjoint:
// value <= oversoldLevel is oversold, value >= overboughtLevel is overbought.
// Levels must satisfy oversoldLevel < overboughtLevel.
func (s *OscillatorState) Observe(value, overboughtLevel, oversoldLevel float64) {
	s.known = true
	s.oversold = value <= oversoldLevel
	s.overbought = !s.oversold && value >= overboughtLevel
}

func (s OscillatorState) Known() bool { return s.known }

func (s OscillatorState) WasOverbought() bool { return s.known && s.overbought }

func (s OscillatorState) WasOversold() bool { return s.known && s.oversold }
