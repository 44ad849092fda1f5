//go:build linux

package keyboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// EVIOCSCLOCKID, _IOW('E', 0xa0, int)
const eviocsclockid = 0x400445a0

// Evdev reads key events from one or more /dev/input/event* devices.
type Evdev struct {
	devices []Device
	files   []*os.File
	events  chan KeyEvent
	dead    chan struct{}
	stop    chan struct{}
	once    sync.Once
	live    atomic.Int32

	mu      sync.Mutex
	lastErr error
}

// Open starts reading the given device paths. With no paths every
// discovered keyboard is opened. Requires read access to /dev/input,
// usually membership of the 'input' group.
func Open(paths ...string) (*Evdev, error) {
	var devices []Device
	if len(paths) == 0 {
		found, err := List()
		if err != nil {
			return nil, fmt.Errorf("finding keyboards: %w", err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
		}
		devices = found
	} else {
		for _, p := range paths {
			devices = append(devices, Device{Path: p, Name: deviceName(filepath.Base(p))})
		}
	}

	var (
		opened  []Device
		files   []*os.File
		openErr error
	)
	for _, d := range devices {
		f, err := os.Open(d.Path)
		if err != nil {
			openErr = err
			continue
		}
		setMonotonic(f)
		opened = append(opened, d)
		files = append(files, f)
	}

	if len(files) == 0 {
		if errors.Is(openErr, os.ErrPermission) {
			return nil, fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login): %w", openErr)
		}
		return nil, fmt.Errorf("could not open any keyboard device: %w", openErr)
	}
	return start(opened, files), nil
}

// start launches one reader per file. files[i] belongs to devices[i].
func start(devices []Device, files []*os.File) *Evdev {
	e := &Evdev{
		devices: devices,
		files:   files,
		events:  make(chan KeyEvent, 64),
		dead:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	e.live.Store(int32(len(files)))
	for i, f := range files {
		go e.readEvents(f, devices[i])
	}
	return e
}

// Devices returns the devices that were opened successfully.
func (e *Evdev) Devices() []Device {
	return e.devices
}

// setMonotonic asks the kernel to stamp events with CLOCK_MONOTONIC. Best
// effort: older kernels keep the realtime clock.
func setMonotonic(f *os.File) {
	rc, err := f.SyscallConn()
	if err != nil {
		return
	}
	// Control instead of f.Fd() keeps the descriptor non-blocking so Close
	// still interrupts a pending Read.
	_ = rc.Control(func(fd uintptr) {
		_ = unix.IoctlSetPointerInt(int(fd), eviocsclockid, unix.CLOCK_MONOTONIC)
	})
}

func (e *Evdev) readEvents(f *os.File, d Device) {
	buf := make([]byte, inputEventSize*16)

	for {
		n, err := f.Read(buf)
		if err != nil {
			e.fail(fmt.Errorf("%s: %w", d.Path, err))
			return
		}

		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			ev, ok := decodeEvent(buf[i : i+inputEventSize])
			if !ok {
				continue
			}
			select {
			case e.events <- ev:
			case <-e.stop:
				return
			}
		}
	}
}

func (e *Evdev) fail(err error) {
	select {
	case <-e.stop:
		return
	default:
	}
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	if e.live.Add(-1) == 0 {
		close(e.dead)
	}
}

func (e *Evdev) Next(ctx context.Context) (KeyEvent, error) {
	select {
	case ev := <-e.events:
		return ev, nil
	default:
	}

	select {
	case ev := <-e.events:
		return ev, nil
	case <-ctx.Done():
		return KeyEvent{}, ctx.Err()
	case <-e.stop:
		return KeyEvent{}, io.EOF
	case <-e.dead:
		// Deliver whatever was decoded before the last device went away.
		select {
		case ev := <-e.events:
			return ev, nil
		default:
		}
		e.mu.Lock()
		err := e.lastErr
		e.mu.Unlock()
		return KeyEvent{}, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
}

func (e *Evdev) Close() error {
	e.once.Do(func() {
		close(e.stop)
		for _, f := range e.files {
			f.Close()
		}
	})
	return nil
}

// List returns the keyboards found under /dev/input, preferred ones first.
func List() ([]Device, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []Device
	for _, ent := range entries {
		if !strings.HasPrefix(ent.Name(), "event") {
			continue
		}
		if !isKeyboard(ent.Name()) {
			continue
		}
		keyboards = append(keyboards, Device{
			Path: filepath.Join("/dev/input", ent.Name()),
			Name: deviceName(ent.Name()),
		})
	}
	return rank(keyboards), nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	return hasKeys(strings.TrimSpace(string(data)), KeyA, KeyZ, KeySpace)
}

func deviceName(eventName string) string {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "name"))
	if err != nil {
		return eventName
	}
	return strings.TrimSpace(string(data))
}

// Diagnose checks evdev access and returns a status message.
func Diagnose() (string, error) {
	keyboards, err := List()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	var opened *Device
	for i, d := range keyboards {
		f, err := os.Open(d.Path)
		if err == nil {
			f.Close()
			opened = &keyboards[i]
			break
		}
	}
	if opened == nil {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
	}

	return fmt.Sprintf("%d keyboard(s) found, opened %s (%s)", len(keyboards), opened.Path, opened.Name), nil
}
