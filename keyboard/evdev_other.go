//go:build !linux

package keyboard

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("raw keyboard input is only supported on Linux")

type Evdev struct{}

func Open(paths ...string) (*Evdev, error) { return nil, errUnsupported }

func (e *Evdev) Devices() []Device                      { return nil }
func (e *Evdev) Next(context.Context) (KeyEvent, error) { return KeyEvent{}, errUnsupported }
func (e *Evdev) Close() error                           { return nil }

func List() ([]Device, error) { return nil, errUnsupported }

func Diagnose() (string, error) { return "", errUnsupported }
