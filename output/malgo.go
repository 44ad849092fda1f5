package output

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoSink struct {
	cfg    Config
	ctx    *malgo.AllocatedContext
	lost   lostSignal
	device *malgo.Device

	// scratch is only touched by the data callback.
	scratch []float32
	closing atomic.Bool
	once    sync.Once
}

func openMalgo(cfg Config) (Sink, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, unavailable("malgo", err)
	}
	return &malgoSink{cfg: cfg, ctx: ctx, lost: newLostSignal()}, nil
}

func malgoDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, unavailable("malgo", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	devices, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoSink) Start(src Source) error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.cfg.Latency.Milliseconds())

	if m.cfg.Device != "" {
		idBytes, err := hex.DecodeString(m.cfg.Device)
		if err != nil {
			return fmt.Errorf("%w: invalid malgo device ID: %v", ErrOutputUnavailable, err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Playback.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			n := int(frameCount)
			if cap(m.scratch) < n {
				m.scratch = make([]float32, n)
			}
			buf := m.scratch[:n]
			src.Fill(buf)
			putFloat32LE(out, buf)
		},
		Stop: func() {
			if !m.closing.Load() {
				m.lost.report("malgo", errors.New("device stopped"))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return unavailable("malgo", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return unavailable("malgo", err)
	}
	m.device = dev
	return nil
}

func (m *malgoSink) Lost() <-chan error { return m.lost }

func (m *malgoSink) Close() error {
	m.once.Do(func() {
		m.closing.Store(true)
		if m.device != nil {
			m.device.Uninit()
		}
		_ = m.ctx.Uninit()
		m.ctx.Free()
	})
	return nil
}
