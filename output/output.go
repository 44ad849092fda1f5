// Package output opens the system audio sink and feeds it from a pull
// source such as the mixer.
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrOutputUnavailable wraps every failure to open the sink and every loss
// of the sink mid-session.
var ErrOutputUnavailable = errors.New("audio output unavailable")

const (
	DefaultBackend    = "pulse"
	DefaultSampleRate = 44100
	DefaultLatency    = 50 * time.Millisecond
)

// Backends lists the accepted backend names.
var Backends = []string{"pulse", "malgo", "oto"}

// Source produces the next block of mono float32 samples. Fill is called
// from the backend's audio thread and must not block.
type Source interface {
	Fill(buf []float32)
}

// underrunNoter is implemented by sources that want to hear about
// output underruns.
type underrunNoter interface {
	NoteUnderrun()
}

// Sink is an open audio output stream.
type Sink interface {
	// Start begins pulling samples from src.
	Start(src Source) error
	// Lost delivers at most one error, wrapping ErrOutputUnavailable, if
	// the device goes away after Start.
	Lost() <-chan error
	Close() error
}

type Config struct {
	Backend    string
	Device     string // backend-specific device id, empty for the default
	SampleRate int
	Latency    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Latency <= 0 {
		c.Latency = DefaultLatency
	}
	return c
}

type DeviceInfo struct {
	ID   string // opaque backend-specific identifier
	Name string
}

// Open connects to the configured backend. Errors wrap
// ErrOutputUnavailable.
func Open(cfg Config) (Sink, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case "pulse":
		return openPulse(cfg)
	case "malgo":
		return openMalgo(cfg)
	case "oto":
		return openOto(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (use pulse, malgo, or oto)", ErrOutputUnavailable, cfg.Backend)
	}
}

// Devices lists the playback devices a backend can address.
func Devices(backend string) ([]DeviceInfo, error) {
	switch backend {
	case "", "pulse":
		return pulseDevices()
	case "malgo":
		return malgoDevices()
	case "oto":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrOutputUnavailable, backend, err)
}

// lostSignal delivers a single loss error without ever blocking the
// audio thread.
type lostSignal chan error

func newLostSignal() lostSignal { return make(lostSignal, 1) }

func (l lostSignal) report(backend string, err error) {
	select {
	case l <- unavailable(backend, err):
	default:
	}
}

func noteUnderrun(src Source) {
	if n, ok := src.(underrunNoter); ok {
		n.NoteUnderrun()
	}
}

// putFloat32LE encodes samples as little-endian float32 into dst, which
// must hold 4 bytes per sample.
func putFloat32LE(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
