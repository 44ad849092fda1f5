// Package mixer sums overlapping keystroke voices into one output stream.
//
// Play is called from the event loop and never blocks: each keystroke's
// voices travel to the audio callback as one batch over a bounded channel.
// When the channel is full the oldest waiting batch is discarded, so new
// keystrokes always get through.
// Fill runs on the audio callback and owns the active voice list outright,
// so the hot path takes no locks.
package mixer

import (
	"math"
	"sync/atomic"

	"clack/sound"
)

const (
	DefaultCapacity  = 32
	DefaultQueueSize = 256
	DefaultVolume    = 0.8
)

// knee is where the soft clipper starts bending the signal.
const knee = 0.8

// Config sizes a Mixer. Zero values fall back to the defaults.
type Config struct {
	// Capacity is the soft cap on concurrent voices. Admitting a voice
	// beyond it evicts the oldest one.
	Capacity int
	// QueueSize bounds the keystrokes waiting for the next Fill.
	QueueSize int
	Volume    float64
}

func DefaultConfig() Config {
	return Config{
		Capacity:  DefaultCapacity,
		QueueSize: DefaultQueueSize,
		Volume:    DefaultVolume,
	}
}

type voice struct {
	kind    sound.Kind
	samples []float32
	gain    float32
	cursor  int
}

// Stats is a snapshot of the mixer counters.
type Stats struct {
	Active   int64
	Admitted uint64
	// Evicted counts playing voices cut to stay under Capacity.
	Evicted uint64
	// Dropped counts queued voices discarded unheard to make room for a
	// newer keystroke.
	Dropped uint64
	Retired uint64
	// Samples counts voice samples mixed into the output.
	Samples   uint64
	Underruns uint64
}

// Mixer mixes keystroke voices for a single audio callback. Play and the
// accessors are safe for concurrent use; Fill is not.
type Mixer struct {
	queue    chan []voice
	capacity int
	volume   atomic.Uint64
	closed   atomic.Bool

	// Only touched by Fill. Ordered by admission, oldest first.
	voices []voice

	active    atomic.Int64
	admitted  atomic.Uint64
	evicted   atomic.Uint64
	dropped   atomic.Uint64
	retired   atomic.Uint64
	samples   atomic.Uint64
	underruns atomic.Uint64
}

// New returns an empty Mixer sized by cfg.
func New(cfg Config) *Mixer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	m := &Mixer{
		queue:    make(chan []voice, cfg.QueueSize),
		capacity: cfg.Capacity,
		voices:   make([]voice, 0, cfg.Capacity),
	}
	m.SetVolume(cfg.Volume)
	return m
}

// Play queues one voice per layer, all or nothing, and returns
// immediately. Layers are only read, never written, so bank templates can
// be passed directly.
func (m *Mixer) Play(layers ...sound.Layer) {
	if m.closed.Load() {
		return
	}
	batch := make([]voice, 0, len(layers))
	for _, l := range layers {
		if len(l.Samples) == 0 {
			continue
		}
		batch = append(batch, voice{kind: l.Kind, samples: l.Samples, gain: float32(l.Gain)})
	}
	if len(batch) == 0 {
		return
	}
	for {
		select {
		case m.queue <- batch:
			return
		default:
		}
		// Full: discard the oldest waiting keystroke and retry. Fill may
		// have emptied the slot first, in which case the retry succeeds.
		select {
		case stale := <-m.queue:
			m.dropped.Add(uint64(len(stale)))
		default:
		}
	}
}

// Fill overwrites buf with the next block of mixed mono samples. It must
// only be called from one goroutine at a time, normally the audio callback.
func (m *Mixer) Fill(buf []float32) {
	clear(buf)
	if m.closed.Load() {
		if len(m.voices) > 0 {
			m.voices = m.voices[:0]
			m.active.Store(0)
		}
		return
	}

	m.admit()

	var mixed uint64
	for i := range m.voices {
		v := &m.voices[i]
		n := min(len(buf), len(v.samples)-v.cursor)
		src := v.samples[v.cursor : v.cursor+n]
		for j, s := range src {
			buf[j] += s * v.gain
		}
		v.cursor += n
		mixed += uint64(n)
	}
	m.samples.Add(mixed)

	// Retire finished voices, keeping admission order.
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.cursor < len(v.samples) {
			kept = append(kept, v)
		} else {
			m.retired.Add(1)
		}
	}
	clear(m.voices[len(kept):])
	m.voices = kept

	vol := float32(m.Volume())
	for j := range buf {
		buf[j] = softClip(buf[j] * vol)
	}
	m.active.Store(int64(len(m.voices)))
}

func (m *Mixer) admit() {
	for {
		select {
		case batch := <-m.queue:
			for _, v := range batch {
				if len(m.voices) >= m.capacity {
					copy(m.voices, m.voices[1:])
					m.voices[len(m.voices)-1] = voice{}
					m.voices = m.voices[:len(m.voices)-1]
					m.evicted.Add(1)
				}
				m.voices = append(m.voices, v)
				m.admitted.Add(1)
			}
		default:
			return
		}
	}
}

// softClip is the identity up to knee and bends smoothly towards ±1 above.
func softClip(x float32) float32 {
	a := math.Abs(float64(x))
	if a <= knee {
		return x
	}
	y := knee + (1-knee)*math.Tanh((a-knee)/(1-knee))
	return float32(math.Copysign(y, float64(x)))
}

func (m *Mixer) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	m.volume.Store(math.Float64bits(v))
}

func (m *Mixer) Volume() float64 {
	return math.Float64frombits(m.volume.Load())
}

// NoteUnderrun records that the output ran dry. Underruns are tolerated;
// the count only feeds diagnostics.
func (m *Mixer) NoteUnderrun() {
	m.underruns.Add(1)
}

// Close stops accepting voices. In-flight voices are discarded and every
// later Fill yields silence. Safe to call more than once.
func (m *Mixer) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	for {
		select {
		case <-m.queue:
		default:
			return nil
		}
	}
}

func (m *Mixer) Closed() bool { return m.closed.Load() }

// Stats reads the counters. Active is as of the last Fill.
func (m *Mixer) Stats() Stats {
	return Stats{
		Active:    m.active.Load(),
		Admitted:  m.admitted.Load(),
		Evicted:   m.evicted.Load(),
		Dropped:   m.dropped.Load(),
		Retired:   m.retired.Load(),
		Samples:   m.samples.Load(),
		Underruns: m.underruns.Load(),
	}
}
