package audio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func mockConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 10 * time.Millisecond
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BufferSize() != 480 || cfg.BufferBytes() != 960 {
		t.Errorf("buffer = %d frames / %d bytes", cfg.BufferSize(), cfg.BufferBytes())
	}

	mic := MicConfig()
	if mic.SampleRate != 16000 || mic.BufferSize() != 512 {
		t.Errorf("mic config = %+v (%d frames)", mic, mic.BufferSize())
	}

	for _, bad := range []Config{
		{SampleRate: 0, Channels: 1, BufferDuration: time.Millisecond},
		{SampleRate: 16000, Channels: 0, BufferDuration: time.Millisecond},
		{SampleRate: 16000, Channels: 1},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
}

func TestFactory(t *testing.T) {
	src, err := NewSource(mockConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if src.Name() != "mock" {
		t.Errorf("source name = %q", src.Name())
	}
	sink, err := NewSink(mockConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sink.Name() != "mock" {
		t.Errorf("sink name = %q", sink.Name())
	}

	bad := mockConfig()
	bad.Backend = "alsa"
	if _, err := NewSource(bad, nil); err == nil {
		t.Error("expected unsupported backend error")
	}
}

func TestMockSourceScript(t *testing.T) {
	script := []Chunk{
		{Samples: []int16{1, 2}, SampleRate: 16000, Channels: 1},
		{Samples: []int16{3, 4}, SampleRate: 16000, Channels: 1},
	}
	src := NewMockSource(mockConfig(), nil, WithScript(script))
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := range script {
		c, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if c.Samples[0] != script[i].Samples[0] {
			t.Errorf("chunk %d = %v", i, c.Samples)
		}
	}
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after script, got %v", err)
	}
	if src.ChunksRead() != 2 {
		t.Errorf("chunks read = %d", src.ChunksRead())
	}
}

func TestMockSourceSine(t *testing.T) {
	cfg := mockConfig()
	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	c, err := src.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Samples) != cfg.BufferSize() {
		t.Errorf("got %d samples, want %d", len(c.Samples), cfg.BufferSize())
	}
	if RMS(c.Samples) < 0.1 {
		t.Errorf("sine RMS too low: %f", RMS(c.Samples))
	}

	src.Stop()
	src.Close()
	if err := src.Start(ctx); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("start after close = %v", err)
	}
}

func TestResample(t *testing.T) {
	same := []int16{1, 2, 3}
	if got := Resample(same, 24000, 24000); len(got) != 3 {
		t.Errorf("same-rate resample changed length: %v", got)
	}

	down := Resample(make([]int16, 960), 48000, 24000)
	if len(down) != 480 {
		t.Errorf("downsample length = %d, want 480", len(down))
	}

	up := Resample(make([]int16, 320), 16000, 24000)
	if len(up) != 480 {
		t.Errorf("upsample length = %d, want 480", len(up))
	}

	if got := Resample(nil, 24000, 48000); len(got) != 0 {
		t.Error("expected empty result for nil input")
	}
}

func TestSampleConversions(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	if got := BytesToSamples(SamplesToBytes(samples)); len(got) != len(samples) || got[2] != -1 || got[4] != -32768 {
		t.Errorf("round trip = %v", got)
	}

	mono := Downmix([]int16{100, 200, -50, 50}, 2)
	if len(mono) != 2 || mono[0] != 150 || mono[1] != 0 {
		t.Errorf("mono = %v", mono)
	}
	if got := Downmix([]int16{3, 6, 9, 1, 1, 1}, 3); len(got) != 2 || got[0] != 6 || got[1] != 1 {
		t.Errorf("3ch downmix = %v", got)
	}

	f := ToFloat32([]int16{-32768, 0, 16384})
	if f[0] != -1 || f[1] != 0 || f[2] != 0.5 {
		t.Errorf("floats = %v", f)
	}

	if RMS(nil) != 0 || RMS([]int16{0, 0}) != 0 {
		t.Error("silence RMS must be 0")
	}

	c := Chunk{Samples: []int16{10, 20, 30, 40}, SampleRate: 2, Channels: 2}
	if c.Duration() != 1 {
		t.Errorf("duration = %v", c.Duration())
	}
	if m := c.Mono(); m.Channels != 1 || len(m.Samples) != 2 || m.Samples[0] != 15 {
		t.Errorf("mono chunk = %+v", m)
	}
}

func TestPlayerPlaysAndResamples(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil)
	p := NewPlayer(sink, nil)

	var started, ended int
	p.OnPlaybackStart = func() { started++ }
	p.OnPlaybackEnd = func() { ended++ }

	pcm := SamplesToBytes(make([]int16, 1600)) // 100ms at 16kHz
	if err := p.Play(context.Background(), pcm, 16000); err != nil {
		t.Fatalf("play: %v", err)
	}
	if got := len(sink.Written()); got != 2400 {
		t.Errorf("wrote %d samples, want 2400 at 24kHz", got)
	}
	if started != 1 || ended != 1 {
		t.Errorf("callbacks start=%d end=%d", started, ended)
	}
	if p.IsPlaying() {
		t.Error("IsPlaying after Play returned")
	}
}

func TestPlayerCancel(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil)
	sink.WriteDelay = 20 * time.Millisecond
	p := NewPlayer(sink, nil)

	pcm := SamplesToBytes(make([]int16, 24000)) // 1s
	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), pcm, 24000) }()

	time.Sleep(30 * time.Millisecond)
	p.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("playback did not stop")
	}
	if len(sink.Written()) >= 24000 {
		t.Error("cancelled playback wrote everything")
	}
	if sink.Clears() == 0 {
		t.Error("expected sink to be cleared")
	}
}

func TestPlayerNewestWins(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil)
	sink.WriteDelay = 20 * time.Millisecond
	p := NewPlayer(sink, nil)

	long := SamplesToBytes(make([]int16, 24000))
	first := make(chan error, 1)
	go func() { first <- p.Play(context.Background(), long, 24000) }()
	time.Sleep(30 * time.Millisecond)

	short := SamplesToBytes([]int16{7, 7, 7})
	if err := p.Play(context.Background(), short, 24000); err != nil {
		t.Fatalf("second play: %v", err)
	}
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first playback err = %v, want cancelled", err)
	}
	w := sink.Written()
	if w[len(w)-1] != 7 {
		t.Error("newest playback should be written last")
	}
}
