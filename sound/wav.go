package sound

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// layerStreamer plays a layer once as a beep.Streamer.
type layerStreamer struct {
	layer Layer
	pos   int
}

func (s *layerStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.layer.Samples) {
		return 0, false
	}
	n := min(len(samples), len(s.layer.Samples)-s.pos)
	for i := 0; i < n; i++ {
		v := float64(s.layer.Samples[s.pos+i]) * s.layer.Gain
		samples[i][0] = v
		samples[i][1] = v
	}
	s.pos += n
	return n, true
}

func (s *layerStreamer) Err() error { return nil }

// ExportWAV writes every template as a 16-bit mono WAV file named after
// its kind and returns the written paths.
func (b *Bank) ExportWAV(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(b.rate),
		NumChannels: 1,
		Precision:   2,
	}

	var paths []string
	for _, k := range Kinds {
		path := filepath.Join(dir, k.String()+".wav")
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		err = wav.Encode(f, &layerStreamer{layer: b.templates[k]}, format)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, fmt.Errorf("encoding %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
