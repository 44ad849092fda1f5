package keyboard

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawEvent(sec, usec uint64, typ, code uint16, value int32) []byte {
	b := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint64(b[0:], sec)
	binary.LittleEndian.PutUint64(b[8:], usec)
	binary.LittleEndian.PutUint16(b[16:], typ)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
	return b
}

func TestDecodeEventPressRelease(t *testing.T) {
	ev, ok := decodeEvent(rawEvent(12, 500, evKey, uint16(KeyA), keyPress))
	require.True(t, ok)
	assert.Equal(t, KeyA, ev.Code)
	assert.Equal(t, Down, ev.Transition)
	assert.Equal(t, 12*time.Second+500*time.Microsecond, ev.Time)

	ev, ok = decodeEvent(rawEvent(12, 600, evKey, uint16(KeySpace), keyRelease))
	require.True(t, ok)
	assert.Equal(t, KeySpace, ev.Code)
	assert.Equal(t, Up, ev.Transition)
}

func TestDecodeEventSkipsNonKeys(t *testing.T) {
	_, ok := decodeEvent(rawEvent(1, 0, evKey, uint16(KeyA), keyRepeat))
	assert.False(t, ok, "autorepeat must be dropped")

	_, ok = decodeEvent(rawEvent(1, 0, 0, 0, 0)) // EV_SYN
	assert.False(t, ok)

	_, ok = decodeEvent(rawEvent(1, 0, 4, 4, 30)) // EV_MSC scan code
	assert.False(t, ok)

	_, ok = decodeEvent(make([]byte, 10))
	assert.False(t, ok)
}

func TestHasKeys(t *testing.T) {
	// A typical laptop keyboard bitmap (64-bit words).
	caps := "402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe"
	assert.True(t, hasKeys(caps, KeyEsc, KeyA, KeyZ, KeySpace))

	// Power button: only KEY_POWER (116).
	assert.False(t, hasKeys("10000000000000 0", KeyA))

	assert.False(t, hasKeys("", KeyA))
	assert.False(t, hasKeys("zz", KeyA))
}

func TestRankPrefersKeyboards(t *testing.T) {
	devices := []Device{
		{Path: "/dev/input/event3", Name: "Logitech USB Receiver Mouse"},
		{Path: "/dev/input/event5", Name: "Gaming Mouse Keyboard"},
		{Path: "/dev/input/event0", Name: "AT Translated Set 2 keyboard"},
		{Path: "/dev/input/event7", Name: "Keychron K2"},
	}
	got := rank(devices)
	require.Len(t, got, 4)
	assert.Equal(t, "/dev/input/event0", got[0].Path)
	assert.Equal(t, "/dev/input/event3", got[1].Path)
	assert.Equal(t, "/dev/input/event5", got[2].Path)
	assert.Equal(t, "/dev/input/event7", got[3].Path)
	assert.Equal(t, "/dev/input/event3", devices[0].Path, "input slice must not be reordered")
}

func TestFakeOrderAndEOF(t *testing.T) {
	f := NewFake(4)
	f.Sim(KeyEvent{Code: KeyA, Transition: Down})
	f.Sim(KeyEvent{Code: KeySpace, Transition: Down})
	f.End()

	ctx := context.Background()
	ev, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, KeyA, ev.Code)

	ev, err = f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, KeySpace, ev.Code)

	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFakeLose(t *testing.T) {
	f := NewFake(1)
	f.Lose(errors.New("no such device"))

	_, err := f.Next(context.Background())
	assert.ErrorIs(t, err, ErrDeviceLost)
	assert.Contains(t, err.Error(), "no such device")
}

func TestFakeNextHonoursContext(t *testing.T) {
	f := NewFake(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "down", Down.String())
	assert.Equal(t, "up", Up.String())
	assert.Equal(t, "transition(7)", Transition(7).String())
}
