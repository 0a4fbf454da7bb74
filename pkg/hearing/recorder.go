package hearing

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// Recorder saves utterances as 16-bit mono WAV files.
type Recorder struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewRecorder writes into dir on fs, creating it when needed.
func NewRecorder(fs afero.Fs, dir string) *Recorder {
	return &Recorder{fs: fs, dir: dir, now: time.Now}
}

// Save writes samples and returns the file path.
func (r *Recorder) Save(samples []int16, sampleRate int) (string, error) {
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("hearing: create record dir: %w", err)
	}

	name := filepath.Join(r.dir, "utterance-"+r.now().UTC().Format("20060102-150405.000")+".wav")
	f, err := r.fs.Create(name)
	if err != nil {
		return "", fmt.Errorf("hearing: create %s: %w", name, err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("hearing: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("hearing: finalize wav: %w", err)
	}
	return name, nil
}
