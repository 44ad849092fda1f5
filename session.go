package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clack/dispatch"
	"clack/keyboard"
	"clack/log"
	"clack/mixer"
	"clack/output"
	"clack/sound"
)

// session owns the live pieces of one run. Whatever path ends it, the
// source, mixer, and sink are all closed before runSession returns.
type session struct {
	src  keyboard.Source
	sink output.Sink
	mix  *mixer.Mixer
	bank *sound.Bank
	opts []dispatch.Option
}

// runSession starts playback and dispatches key events until ctx is
// cancelled (nil), the keyboard goes away (ErrDeviceLost), or the audio
// device goes away (ErrOutputUnavailable).
func runSession(ctx context.Context, s session) (log.Summary, error) {
	started := time.Now()
	defer s.src.Close()
	defer s.sink.Close()
	defer s.mix.Close()

	if err := s.sink.Start(s.mix); err != nil {
		return log.Summary{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := dispatch.New(s.src, s.bank, s.mix, s.opts...)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var err error
	select {
	case err = <-done:
	case lostErr := <-s.sink.Lost():
		log.Warn("audio output lost, stopping keyboard")
		cancel()
		<-done
		err = lostErr
	}

	ds, ms := d.Stats(), s.mix.Stats()
	summary := log.Summary{
		Duration:  time.Since(started),
		Events:    ds.Events,
		Plays:     ds.Plays,
		Skipped:   ds.Skipped,
		Admitted:  ms.Admitted,
		Evicted:   ms.Evicted,
		Dropped:   ms.Dropped,
		Underruns: ms.Underruns,
	}
	if ms.Underruns > 0 {
		log.Debugf("tolerated %d output underruns", ms.Underruns)
	}
	return summary, err
}

// exitCode maps a session result onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// describe renders a fatal error as the one-line message shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, keyboard.ErrDeviceLost):
		return fmt.Sprintf("%v (was the keyboard unplugged?)", err)
	case errors.Is(err, output.ErrOutputUnavailable):
		return fmt.Sprintf("%v (is PulseAudio or PipeWire running?)", err)
	default:
		return err.Error()
	}
}
