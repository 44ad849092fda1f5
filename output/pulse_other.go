//go:build !linux

package output

import "errors"

var errNoPulse = errors.New("pulse backend is only available on Linux")

func openPulse(Config) (Sink, error) { return nil, unavailable("pulse", errNoPulse) }

func pulseDevices() ([]DeviceInfo, error) { return nil, unavailable("pulse", errNoPulse) }
