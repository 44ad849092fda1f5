//go:build linux

package output

import (
	"errors"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

const pulseWatchInterval = 250 * time.Millisecond

type pulseSink struct {
	cfg    Config
	client *pulse.Client
	lost   lostSignal

	mu     sync.Mutex
	stream *pulse.PlaybackStream
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func openPulse(cfg Config) (Sink, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, unavailable("pulse", err)
	}
	return &pulseSink{cfg: cfg, client: c, lost: newLostSignal()}, nil
}

func pulseDevices() ([]DeviceInfo, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, unavailable("pulse", err)
	}
	defer c.Close()

	sinks, err := c.ListSinks()
	if err != nil {
		return nil, unavailable("pulse list sinks", err)
	}
	var devices []DeviceInfo
	for _, s := range sinks {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

func (p *pulseSink) Start(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	reader := pulse.Float32Reader(func(buf []float32) (int, error) {
		src.Fill(buf)
		return len(buf), nil
	})

	opts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(p.cfg.SampleRate),
		pulse.PlaybackLatency(p.cfg.Latency.Seconds()),
		pulse.PlaybackRawOption(func(c *proto.CreatePlaybackStream) {
			c.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	}
	if p.cfg.Device != "" {
		sink, err := p.client.SinkByID(p.cfg.Device)
		if err != nil {
			return unavailable("pulse sink "+p.cfg.Device, err)
		}
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	stream, err := p.client.NewPlayback(reader, opts...)
	if err != nil {
		return unavailable("pulse playback", err)
	}

	p.stream = stream
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stream.Start()

	go p.watch(src)
	return nil
}

// watch polls the stream for underflows and for the server dropping it.
func (p *pulseSink) watch(src Source) {
	defer close(p.done)
	t := time.NewTicker(pulseWatchInterval)
	defer t.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
		}
		if p.stream.Underflow() {
			noteUnderrun(src)
		}
		if err := p.stream.Error(); err != nil {
			p.lost.report("pulse", err)
			return
		}
		if !p.stream.Running() {
			select {
			case <-p.stop:
			default:
				p.lost.report("pulse", errors.New("playback stream stopped"))
			}
			return
		}
	}
}

func (p *pulseSink) Lost() <-chan error { return p.lost }

func (p *pulseSink) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stream != nil {
			close(p.stop)
			<-p.done
			p.stream.Stop()
			p.stream.Close()
		}
		p.client.Close()
	})
	return nil
}
