package sound

import "math/rand/v2"

const (
	PitchSpread = 0.05
	GainSpread  = 0.10
)

// Draw is one random variation applied to a layer.
type Draw struct {
	Pitch float64
	Gain  float64
}

// NewDraw picks a uniform variation within PitchSpread and GainSpread.
func NewDraw(r *rand.Rand) Draw {
	return Draw{
		Pitch: 1 + (r.Float64()*2-1)*PitchSpread,
		Gain:  1 + (r.Float64()*2-1)*GainSpread,
	}
}

const spreadSlack = 1e-9

// Jitter returns a copy of l resampled by d.Pitch, with its gain scaled by
// d.Gain. l itself is not modified.
func Jitter(l Layer, d Draw) (Layer, error) {
	if d.Pitch < 1-PitchSpread-spreadSlack || d.Pitch > 1+PitchSpread+spreadSlack {
		return Layer{}, &SynthesisError{Kind: l.Kind, Param: "pitch", Value: d.Pitch}
	}
	if d.Gain < 1-GainSpread-spreadSlack || d.Gain > 1+GainSpread+spreadSlack {
		return Layer{}, &SynthesisError{Kind: l.Kind, Param: "gain", Value: d.Gain}
	}
	if len(l.Samples) == 0 {
		return Layer{}, &SynthesisError{Kind: l.Kind, Param: "length", Value: 0}
	}

	src := l.Samples
	n := int(float64(len(src)) / d.Pitch)
	out := make([]float32, n)
	last := len(src) - 1
	for i := range out {
		pos := float64(i) * d.Pitch
		j := int(pos)
		if j >= last {
			out[i] = src[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = src[j] + (src[j+1]-src[j])*frac
	}
	return Layer{Kind: l.Kind, Samples: out, Gain: l.Gain * d.Gain}, nil
}
