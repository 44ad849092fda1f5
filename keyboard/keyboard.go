// Package keyboard supplies raw key transitions from Linux input devices.
package keyboard

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrDeviceLost is returned once no input device can be read any more.
var ErrDeviceLost = errors.New("keyboard device lost")

// KeyCode is a Linux input key code. It identifies the physical key,
// independent of the active layout.
type KeyCode uint16

const (
	KeyEsc   KeyCode = 1
	KeyA     KeyCode = 30
	KeyZ     KeyCode = 44
	KeySpace KeyCode = 57
)

type Transition uint8

const (
	Down Transition = iota
	Up
)

func (t Transition) String() string {
	switch t {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return fmt.Sprintf("transition(%d)", uint8(t))
	}
}

// KeyEvent is a single key transition. Time is the kernel timestamp of the
// event, taken from the monotonic clock when the device allows it.
type KeyEvent struct {
	Code       KeyCode
	Transition Transition
	Time       time.Duration
}

// Source yields key events in the order they happened. Next returns io.EOF
// when the stream ends and an error wrapping ErrDeviceLost when the
// underlying device can no longer be read.
type Source interface {
	Next(ctx context.Context) (KeyEvent, error)
	Close() error
}

const (
	evKey      = 1
	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

// input_event is 24 bytes on 64-bit Linux:
// timeval (16 bytes) + type (2) + code (2) + value (4)
const inputEventSize = 24

// decodeEvent parses one input_event record. ok is false for anything that
// is not a key press or release; autorepeat is dropped.
func decodeEvent(b []byte) (ev KeyEvent, ok bool) {
	if len(b) < inputEventSize {
		return KeyEvent{}, false
	}
	evType := binary.LittleEndian.Uint16(b[16:])
	if evType != evKey {
		return KeyEvent{}, false
	}
	evCode := binary.LittleEndian.Uint16(b[18:])
	evValue := int32(binary.LittleEndian.Uint32(b[20:]))

	switch evValue {
	case keyPress:
		ev.Transition = Down
	case keyRelease:
		ev.Transition = Up
	case keyRepeat:
		return KeyEvent{}, false
	default:
		return KeyEvent{}, false
	}

	sec := int64(binary.LittleEndian.Uint64(b[0:]))
	usec := int64(binary.LittleEndian.Uint64(b[8:]))
	ev.Code = KeyCode(evCode)
	ev.Time = time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond
	return ev, true
}
