package hearing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/fi-losopher/Perception/pkg/audio"
	"github.com/fi-losopher/Perception/pkg/perception"
)

// noise produces deterministic uniform noise in [-amp, amp].
type noise struct{ state uint32 }

func (n *noise) samples(count int, amp int) []int16 {
	out := make([]int16, count)
	for i := range out {
		n.state = n.state*1664525 + 1013904223
		out[i] = int16(int(n.state>>16)%(2*amp+1) - amp)
	}
	return out
}

func frames(n *noise, count, amp int) []int16 {
	return n.samples(count*512, amp)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVADFluxRisesOnBurst(t *testing.T) {
	n := &noise{state: 1}
	v := NewVAD(512)

	v.Flux(n.samples(512, 50))
	quiet := v.Flux(n.samples(512, 50))
	loud := v.Flux(n.samples(512, 8000))

	if loud <= quiet*10 {
		t.Errorf("burst flux %.2f not well above background %.2f", loud, quiet)
	}
}

func TestVADSilenceHasNoFlux(t *testing.T) {
	v := NewVAD(512)
	if f := v.Flux(make([]int16, 512)); f != 0 {
		t.Errorf("Flux(silence) = %v, want 0", f)
	}
	if f := v.Flux(make([]int16, 100)); f != 0 {
		t.Errorf("Flux(short silence) = %v, want 0", f)
	}
}

func TestVADReset(t *testing.T) {
	n := &noise{state: 7}
	frame := n.samples(512, 4000)

	v := NewVAD(512)
	first := v.Flux(frame)
	if same := v.Flux(frame); same != 0 {
		t.Errorf("Flux(repeat) = %v, want 0", same)
	}
	v.Reset()
	if again := v.Flux(frame); again != first {
		t.Errorf("Flux after Reset = %v, want %v", again, first)
	}
}

func TestSegmenterUtterance(t *testing.T) {
	n := &noise{state: 42}
	seg := NewSegmenter(DefaultSegmenterConfig())

	if _, ok := seg.Push(frames(n, 10, 50)); ok {
		t.Fatal("background noise produced an utterance")
	}
	if seg.Active() {
		t.Fatal("active during background noise")
	}

	if _, ok := seg.Push(frames(n, 16, 8000)); ok {
		t.Fatal("utterance ended during speech")
	}
	if !seg.Active() {
		t.Fatal("not active during speech")
	}

	utt, ok := seg.Push(frames(n, 20, 50))
	if !ok {
		t.Fatal("utterance did not end after trailing quiet")
	}
	if seg.Active() {
		t.Error("still active after utterance ended")
	}
	if len(utt) < 16*512 {
		t.Errorf("utterance has %d samples, want at least %d", len(utt), 16*512)
	}
	if len(utt) > (4+16+17)*512 {
		t.Errorf("utterance has %d samples, too long", len(utt))
	}
}

func TestSegmenterDiscardsClicks(t *testing.T) {
	n := &noise{state: 3}
	seg := NewSegmenter(DefaultSegmenterConfig())

	seg.Push(frames(n, 10, 50))
	seg.Push(frames(n, 1, 8000))
	if _, ok := seg.Push(frames(n, 20, 50)); ok {
		t.Error("single-frame click produced an utterance")
	}
}

func TestSegmenterMaxUtterance(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MaxUtterance = time.Second
	n := &noise{state: 9}
	seg := NewSegmenter(cfg)

	seg.Push(frames(n, 5, 50))
	var got []int16
	for i := 0; i < 60 && got == nil; i++ {
		if utt, ok := seg.Push(frames(n, 1, 8000)); ok {
			got = utt
		}
	}
	if got == nil {
		t.Fatal("continuous speech never produced an utterance")
	}
	if len(got) < 16000 || len(got) > 16000+512 {
		t.Errorf("utterance has %d samples, want about 16000", len(got))
	}
}

func TestSegmenterPartialFrames(t *testing.T) {
	n := &noise{state: 5}
	seg := NewSegmenter(DefaultSegmenterConfig())
	stream := append(frames(n, 10, 50), frames(n, 16, 8000)...)
	stream = append(stream, frames(n, 20, 50)...)

	var got bool
	for len(stream) > 0 {
		k := min(300, len(stream))
		if _, ok := seg.Push(stream[:k]); ok {
			got = true
		}
		stream = stream[k:]
	}
	if !got {
		t.Error("utterance not detected across uneven pushes")
	}
}

func TestJoinSegments(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", nil, ""},
		{"plain", []string{" scan ", "please"}, "scan please"},
		{"annotations", []string{"[BLANK_AUDIO]", " describe", "(music)"}, "describe"},
		{"duplicates", []string{"stop", "stop", " stop "}, "stop"},
		{"blank", []string{"  ", ""}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinSegments(tt.in); got != tt.want {
				t.Errorf("JoinSegments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecorderSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := NewRecorder(fs, "/rec")
	rec.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	samples := []int16{0, 1000, -1000, 32767, -32768, 5}
	path, err := rec.Save(samples, 16000)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != "/rec/utterance-20260102-030405.000.wav" {
		t.Errorf("path = %q", path)
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != 16000 || buf.Format.NumChannels != 1 {
		t.Errorf("format = %+v", buf.Format)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, v := range samples {
		if buf.Data[i] != int(v) {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], v)
		}
	}
}

func TestRecorderReadOnlyFs(t *testing.T) {
	rec := NewRecorder(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/rec")
	if _, err := rec.Save([]int16{1, 2}, 16000); err == nil {
		t.Error("Save() on read-only fs succeeded")
	}
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls [][]float32
	text  []string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, samples)
	if f.err != nil {
		return "", f.err
	}
	if len(f.text) == 0 {
		return "", nil
	}
	t := f.text[0]
	f.text = f.text[1:]
	return t, nil
}

func scriptOpener(script []audio.Chunk) func() (audio.Source, error) {
	return func() (audio.Source, error) {
		return audio.NewMockSource(audio.MicConfig(), quietLogger(), audio.WithScript(script)), nil
	}
}

func speechScript(n *noise, utterances int) []audio.Chunk {
	var script []audio.Chunk
	add := func(count, amp int) {
		for i := 0; i < count; i++ {
			script = append(script, audio.Chunk{Samples: n.samples(512, amp), SampleRate: 16000, Channels: 1})
		}
	}
	add(10, 50)
	for i := 0; i < utterances; i++ {
		add(16, 8000)
		add(20, 50)
	}
	return script
}

func TestRecognizerEmitsTranscripts(t *testing.T) {
	tr := &fakeTranscriber{text: []string{"scan", "describe"}}
	fs := afero.NewMemMapFs()
	rec := NewRecognizer(scriptOpener(speechScript(&noise{state: 11}, 2)), tr,
		WithLogger(quietLogger()), WithRecorder(NewRecorder(fs, "/rec")))

	var got []string
	if err := rec.Run(context.Background(), func(s string) { got = append(got, s) }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(got) != 2 || got[0] != "scan" || got[1] != "describe" {
		t.Errorf("emitted %q, want [scan describe]", got)
	}
	if len(tr.calls) != 2 {
		t.Errorf("transcriber called %d times, want 2", len(tr.calls))
	}
	entries, err := afero.ReadDir(fs, "/rec")
	if err != nil || len(entries) == 0 {
		t.Errorf("no recordings written (err %v)", err)
	}
}

func TestRecognizerStereo48k(t *testing.T) {
	n := &noise{state: 13}
	var script []audio.Chunk
	add := func(count, amp int) {
		for i := 0; i < count; i++ {
			mono := n.samples(1536, amp)
			stereo := make([]int16, 0, len(mono)*2)
			for _, v := range mono {
				stereo = append(stereo, v, v)
			}
			script = append(script, audio.Chunk{Samples: stereo, SampleRate: 48000, Channels: 2})
		}
	}
	add(10, 50)
	add(16, 8000)
	add(20, 50)

	tr := &fakeTranscriber{text: []string{"stop"}}
	rec := NewRecognizer(scriptOpener(script), tr, WithLogger(quietLogger()))

	var got []string
	if err := rec.Run(context.Background(), func(s string) { got = append(got, s) }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 1 || got[0] != "stop" {
		t.Errorf("emitted %q, want [stop]", got)
	}
}

func TestRecognizerSkipsFailedTranscription(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("model crashed")}
	rec := NewRecognizer(scriptOpener(speechScript(&noise{state: 17}, 1)), tr, WithLogger(quietLogger()))

	called := false
	if err := rec.Run(context.Background(), func(string) { called = true }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if called {
		t.Error("emit called after transcription failure")
	}
}

func TestRecognizerOpenFailure(t *testing.T) {
	rec := NewRecognizer(func() (audio.Source, error) {
		return nil, errors.New("no device")
	}, &fakeTranscriber{}, WithLogger(quietLogger()))

	err := rec.Run(context.Background(), func(string) {})
	if !errors.Is(err, perception.ErrRecognition) {
		t.Errorf("Run() error = %v, want ErrRecognition", err)
	}
}

func TestRecognizerStopsOnCancel(t *testing.T) {
	open := func() (audio.Source, error) {
		return audio.NewMockSource(audio.MicConfig(), quietLogger()), nil
	}
	rec := NewRecognizer(open, &fakeTranscriber{}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx, func(string) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
