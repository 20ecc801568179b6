package md

// SMA is a simple moving average that reports ready once it has seen a full
// window of values.
type SMA struct {
	window int
	buf    *RingBuffer
	value  float64
}

func NewSMA(window int) *SMA {
	return &SMA{window: window, buf: NewRingBuffer(window)}
}

func (s *SMA) Update(value float64) {
	s.buf.Add(value)
	if avg, err := s.buf.SMA(s.window); err == nil {
		s.value = avg
	}
}

func (s *SMA) Value() float64 { return s.value }

func (s *SMA) Ready() bool { return s.buf.Full() }

// Stochastic is the slow stochastic oscillator. The fast value is
// 100*(close-lowest)/(highest-lowest) over period bars, %K smooths it over
// kPeriod and %D smooths %K over dPeriod.
type Stochastic struct {
	period  int
	kPeriod int
	dPeriod int
	highs   *RingBuffer
	lows    *RingBuffer
	fast    *RingBuffer
	ks      *RingBuffer
	k       float64
	d       float64
	ready   bool
}

func NewStochastic(period, kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{
		period:  period,
		kPeriod: kPeriod,
		dPeriod: dPeriod,
		highs:   NewRingBuffer(period),
		lows:    NewRingBuffer(period),
		fast:    NewRingBuffer(kPeriod),
		ks:      NewRingBuffer(dPeriod),
	}
}

func (s *Stochastic) Update(bar Bar) {
	s.highs.Add(bar.High)
	s.lows.Add(bar.Low)
	if !s.highs.Full() {
		return
	}
	highest, _ := s.highs.Max(s.period)
	lowest, _ := s.lows.Min(s.period)
	fast := 0.0
	if span := highest - lowest; span > 0 {
		fast = 100 * (bar.Close - lowest) / span
	}

	s.fast.Add(fast)
	if !s.fast.Full() {
		return
	}
	s.k, _ = s.fast.SMA(s.kPeriod)

	s.ks.Add(s.k)
	if !s.ks.Full() {
		return
	}
	s.d, _ = s.ks.SMA(s.dPeriod)
	s.ready = true
}

func (s *Stochastic) K() float64 { return s.k }

func (s *Stochastic) D() float64 { return s.d }

func (s *Stochastic) Ready() bool { return s.ready }
