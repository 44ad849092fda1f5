package sound

import (
	"fmt"
	"math/rand/v2"

	"clack/keyboard"
)

// Bank holds one synthesized template per layer kind. It is immutable after
// NewBank returns and safe for concurrent use.
type Bank struct {
	rate      int
	templates [numKinds]Layer
}

// NewBank synthesizes every layer at the given sample rate.
func NewBank(rate int) (*Bank, error) {
	b := &Bank{rate: rate}
	rng := rand.New(rand.NewPCG(0x6b6579, 0x636c69636b))
	for _, k := range Kinds {
		r := recipes[k]
		samples, err := synthesize(k, r, rate, rng)
		if err != nil {
			return nil, fmt.Errorf("building sound bank: %w", err)
		}
		b.templates[k] = Layer{Kind: k, Samples: samples, Gain: r.gain}
	}
	return b, nil
}

func (b *Bank) SampleRate() int { return b.rate }

// Template returns the stored layer for a kind.
func (b *Bank) Template(k Kind) Layer {
	return b.templates[k]
}

// Compose returns the layers to play for a key transition. The spacebar
// gets its own accent instead of the case resonance, and every release
// plays the spring-return layer.
func (b *Bank) Compose(code keyboard.KeyCode, tr keyboard.Transition) []Layer {
	if tr == keyboard.Up {
		return []Layer{b.templates[Release]}
	}
	if code == keyboard.KeySpace {
		return []Layer{b.templates[Click], b.templates[Thock], b.templates[SpacebarAccent]}
	}
	return []Layer{b.templates[Click], b.templates[Thock], b.templates[Resonance]}
}
