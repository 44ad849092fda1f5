package output

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const otoWatchInterval = 250 * time.Millisecond

// otoReader adapts a Source to the io.Reader oto pulls from.
type otoReader struct {
	src     Source
	scratch []float32
}

func (r *otoReader) Read(p []byte) (int, error) {
	n := len(p) / 4
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	buf := r.scratch[:n]
	r.src.Fill(buf)
	putFloat32LE(p, buf)
	return n * 4, nil
}

type otoSink struct {
	ctx  *oto.Context
	lost lostSignal

	mu     sync.Mutex
	player *oto.Player
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func openOto(cfg Config) (Sink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   cfg.Latency,
	})
	if err != nil {
		return nil, unavailable("oto", err)
	}
	<-ready
	return &otoSink{ctx: ctx, lost: newLostSignal()}, nil
}

func (o *otoSink) Start(src Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.player = o.ctx.NewPlayer(&otoReader{src: src})
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	o.player.Play()

	go o.watch()
	return nil
}

func (o *otoSink) watch() {
	defer close(o.done)
	t := time.NewTicker(otoWatchInterval)
	defer t.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-t.C:
		}
		if err := o.ctx.Err(); err != nil {
			o.lost.report("oto", err)
			return
		}
		if err := o.player.Err(); err != nil {
			o.lost.report("oto", err)
			return
		}
	}
}

func (o *otoSink) Lost() <-chan error { return o.lost }

func (o *otoSink) Close() error {
	var err error
	o.once.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.player != nil {
			close(o.stop)
			<-o.done
			err = o.player.Close()
		}
		// oto allows one context per process; suspending releases the
		// device without tearing the context down.
		if serr := o.ctx.Suspend(); err == nil {
			err = serr
		}
	})
	return err
}
