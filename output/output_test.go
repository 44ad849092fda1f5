package output

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rampSource struct {
	next      float32
	underruns int
}

func (r *rampSource) Fill(buf []float32) {
	for i := range buf {
		buf[i] = r.next
		r.next += 0.25
	}
}

func (r *rampSource) NoteUnderrun() { r.underruns++ }

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "jack"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputUnavailable)
	assert.Contains(t, err.Error(), `"jack"`)
}

func TestDevicesUnknownBackend(t *testing.T) {
	_, err := Devices("jack")
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultBackend, c.Backend)
	assert.Equal(t, DefaultSampleRate, c.SampleRate)
	assert.Equal(t, DefaultLatency, c.Latency)

	c = Config{Backend: "oto", SampleRate: 48000, Latency: 10 * time.Millisecond}.withDefaults()
	assert.Equal(t, "oto", c.Backend)
	assert.Equal(t, 48000, c.SampleRate)
	assert.Equal(t, 10*time.Millisecond, c.Latency)
}

func TestPutFloat32LE(t *testing.T) {
	samples := []float32{0, 1, -0.5}
	dst := make([]byte, len(samples)*4)
	putFloat32LE(dst, samples)
	for i, s := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:]))
		assert.Equal(t, s, got)
	}
}

func TestOtoReaderPullsWholeFrames(t *testing.T) {
	src := &rampSource{}
	r := &otoReader{src: src}

	p := make([]byte, 10) // two whole frames plus a partial one
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(p[4:])))
	assert.Equal(t, float32(0.5), src.next)
}

func TestLostSignalReportsOnce(t *testing.T) {
	l := newLostSignal()
	l.report("test", errors.New("first"))
	l.report("test", errors.New("second")) // must not block

	select {
	case err := <-l:
		assert.ErrorIs(t, err, ErrOutputUnavailable)
		assert.Contains(t, err.Error(), "first")
	default:
		t.Fatal("expected a loss report")
	}
	select {
	case err := <-l:
		t.Fatalf("unexpected second report: %v", err)
	default:
	}
}

func TestFakeSink(t *testing.T) {
	f := NewFake()
	src := &rampSource{}
	require.NoError(t, f.Start(src))

	out := f.Pull(4)
	assert.Equal(t, []float32{0, 0.25, 0.5, 0.75}, out)
	assert.Equal(t, 4, f.Pulled())

	f.Underrun()
	assert.Equal(t, 1, src.underruns)

	f.Lose()
	select {
	case err := <-f.Lost():
		assert.ErrorIs(t, err, ErrOutputUnavailable)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for loss")
	}

	require.NoError(t, f.Close())
	assert.True(t, f.Closed())
	assert.Equal(t, []float32{0, 0}, f.Pull(2))
}

func TestFakeStartError(t *testing.T) {
	f := NewFake()
	f.StartErr = errors.New("no sound card")
	err := f.Start(&rampSource{})
	assert.ErrorIs(t, err, ErrOutputUnavailable)
}
