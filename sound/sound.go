// Package sound synthesizes the layers that make up a keystroke and maps
// key transitions onto them.
package sound

import (
	"errors"
	"fmt"
)

const SampleRate = 44100

// ErrSynthesis is wrapped by every SynthesisError.
var ErrSynthesis = errors.New("synthesis")

type Kind uint8

const (
	Click Kind = iota
	Thock
	Resonance
	SpacebarAccent
	Release
	numKinds
)

// Kinds lists every layer kind in a stable order.
var Kinds = []Kind{Click, Thock, Resonance, SpacebarAccent, Release}

func (k Kind) String() string {
	switch k {
	case Click:
		return "click"
	case Thock:
		return "thock"
	case Resonance:
		return "resonance"
	case SpacebarAccent:
		return "spacebar_accent"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Layer is one acoustic component of a keystroke. Samples are mono and
// peak-normalized; Gain scales them at mix time. A Layer handed out by a
// Bank shares its samples with the bank's template and must be treated as
// read-only.
type Layer struct {
	Kind    Kind
	Samples []float32
	Gain    float64
}

// SynthesisError reports a synthesis parameter outside its valid range.
type SynthesisError struct {
	Kind  Kind
	Param string
	Value float64
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis %s: %s out of range (%g)", e.Kind, e.Param, e.Value)
}

func (e *SynthesisError) Unwrap() error { return ErrSynthesis }

// KindsOf returns the kinds of layers, in order.
func KindsOf(layers []Layer) []Kind {
	kinds := make([]Kind, len(layers))
	for i, l := range layers {
		kinds[i] = l.Kind
	}
	return kinds
}
