package sound

import (
	"math"
	"math/rand/v2"
	"time"
)

type partial struct {
	ratio float64
	amp   float64
}

// burst is a decaying stack of sine partials, optionally mixed with white
// noise, placed at an offset inside a layer.
type burst struct {
	offset   time.Duration
	duration time.Duration
	freq     float64
	partials []partial
	noise    float64
	decay    float64 // exp(-t*decay)
	attack   float64 // 1-exp(-t*attack), 0 disables
	gain     float64
}

type recipe struct {
	gain   float64
	bursts []burst
}

func tone(offset, duration time.Duration, freq, decay, gain float64, partials ...partial) burst {
	return burst{offset: offset, duration: duration, freq: freq, partials: partials, decay: decay, gain: gain}
}

// pop is a noise burst whose envelope falls to exp(-depth) over its length.
func pop(duration time.Duration, depth, gain float64) burst {
	return burst{duration: duration, noise: 1, decay: depth / duration.Seconds(), gain: gain}
}

func (b burst) withNoise(amount float64) burst {
	b.noise = amount
	return b
}

func (b burst) withAttack(rate float64) burst {
	b.attack = rate
	return b
}

const ms = time.Millisecond

// Timings and frequencies approximate a clicky switch on a plate-mounted
// board.
var recipes = map[Kind]recipe{
	Click: {gain: 0.35, bursts: []burst{
		tone(113*time.Microsecond, 3*ms, 4500, 1500, 0.5, partial{1, 0.6}, partial{1.5, 0.3}, partial{2.2, 0.1}),
		pop(1*ms, 8, 0.4),
	}},
	Thock: {gain: 0.5, bursts: []burst{
		tone(8*ms, 45*ms, 280, 80, 0.7, partial{1, 0.5}, partial{1.8, 0.25}, partial{3.2, 0.15}).
			withNoise(0.1).withAttack(800),
	}},
	Resonance: {gain: 0.2, bursts: []burst{
		tone(0, 50*ms, 180, 60, 0.25, partial{1, 0.4}, partial{1.5, 0.3}),
	}},
	SpacebarAccent: {gain: 0.75, bursts: []burst{
		// deep thock
		tone(0, 70*ms, 150, 45, 0.8, partial{1, 0.5}, partial{220.0 / 150, 0.3}, partial{380.0 / 150, 0.15}).
			withNoise(0.05).withAttack(600),
		// stabilizer rattle
		tone(2*ms, 12*ms, 2200, 250, 0.35, partial{1, 0.4}, partial{3100.0 / 2200, 0.3}).withNoise(0.3),
		// case boom
		tone(0, 80*ms, 100, 40, 0.3, partial{1, 0.6}, partial{1.6, 0.4}),
		pop(2*ms, 6, 0.5),
	}},
	Release: {gain: 0.45, bursts: []burst{
		// spring return
		tone(0, 15*ms, 3200, 400, 0.3, partial{1, 0.4}, partial{0.7, 0.3}),
		// reset click
		tone(3*ms, 8*ms, 2800, 300, 0.4, partial{1, 0.5}, partial{1.3, 0.3}).withNoise(0.2),
		// thump
		tone(0, 20*ms, 200, 150, 0.2, partial{1, 1}),
	}},
}

func samplesFor(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}

func (b burst) validate(k Kind, rate int) error {
	switch {
	case b.duration <= 0:
		return &SynthesisError{Kind: k, Param: "duration", Value: b.duration.Seconds()}
	case b.offset < 0:
		return &SynthesisError{Kind: k, Param: "offset", Value: b.offset.Seconds()}
	case b.decay < 0:
		return &SynthesisError{Kind: k, Param: "decay", Value: b.decay}
	case b.attack < 0:
		return &SynthesisError{Kind: k, Param: "attack", Value: b.attack}
	case b.noise < 0 || b.noise > 1:
		return &SynthesisError{Kind: k, Param: "noise", Value: b.noise}
	}
	nyquist := float64(rate) / 2
	for _, p := range b.partials {
		if f := b.freq * p.ratio; f <= 0 || f >= nyquist {
			return &SynthesisError{Kind: k, Param: "frequency", Value: f}
		}
	}
	return nil
}

// synthesize renders one layer template. rng only feeds the noise
// components, so a fixed seed gives a reproducible template.
func synthesize(k Kind, r recipe, rate int, rng *rand.Rand) ([]float32, error) {
	if rate <= 0 {
		return nil, &SynthesisError{Kind: k, Param: "sample rate", Value: float64(rate)}
	}
	if r.gain <= 0 || r.gain > 1 {
		return nil, &SynthesisError{Kind: k, Param: "gain", Value: r.gain}
	}

	n := 0
	for _, b := range r.bursts {
		if err := b.validate(k, rate); err != nil {
			return nil, err
		}
		n = max(n, samplesFor(b.offset+b.duration, rate))
	}
	if n == 0 {
		return nil, &SynthesisError{Kind: k, Param: "length", Value: 0}
	}

	buf := make([]float64, n)
	for _, b := range r.bursts {
		start := samplesFor(b.offset, rate)
		length := samplesFor(b.duration, rate)
		for i := 0; i < length && start+i < n; i++ {
			t := float64(i) / float64(rate)
			var s float64
			for _, p := range b.partials {
				s += p.amp * math.Sin(2*math.Pi*b.freq*p.ratio*t)
			}
			if b.noise > 0 {
				s += b.noise * (rng.Float64()*2 - 1)
			}
			env := math.Exp(-t * b.decay)
			if b.attack > 0 {
				env *= 1 - math.Exp(-t*b.attack)
			}
			buf[start+i] += s * env * b.gain
		}
	}

	var peak float64
	for _, s := range buf {
		peak = max(peak, math.Abs(s))
	}
	out := make([]float32, n)
	for i, s := range buf {
		out[i] = float32(s / (peak + 0.001))
	}
	return out, nil
}
