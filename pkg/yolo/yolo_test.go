package yolo

import (
	"errors"
	"image"
	"testing"

	"github.com/spf13/afero"
)

func TestLoadClassNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "models/custom.names", []byte("cane\n\n  door  \nstairs\n"), 0o644)
	afero.WriteFile(fs, "models/empty.names", []byte("\n \n"), 0o644)

	tests := []struct {
		name    string
		path    string
		want    []string
		wantLen int
		wantErr error
	}{
		{name: "file", path: "models/custom.names", want: []string{"cane", "door", "stairs"}},
		{name: "missing falls back to coco", path: "models/coco.names", wantLen: 80},
		{name: "empty", path: "models/empty.names", wantErr: ErrNoClasses},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LoadClassNames(fs, tc.path)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tc.want != nil {
				if len(got) != len(tc.want) {
					t.Fatalf("got %q, want %q", got, tc.want)
				}
				for i := range got {
					if got[i] != tc.want[i] {
						t.Errorf("name %d = %q, want %q", i, got[i], tc.want[i])
					}
				}
			}
			if tc.wantLen > 0 && len(got) != tc.wantLen {
				t.Errorf("len = %d, want %d", len(got), tc.wantLen)
			}
		})
	}
}

func TestLoadClassNamesFallbackIsCopy(t *testing.T) {
	got, err := LoadClassNames(afero.NewMemMapFs(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	got[0] = "changed"
	if COCOClasses[0] != "person" {
		t.Error("fallback aliases COCOClasses")
	}
}

// tensor builds a channel-major [4+classes, anchors] output.
func tensor(classes int, anchors [][]float32) []float32 {
	features := 4 + classes
	data := make([]float32, features*len(anchors))
	for i, a := range anchors {
		for f := 0; f < features; f++ {
			data[f*len(anchors)+i] = a[f]
		}
	}
	return data
}

func TestDecodeOutput(t *testing.T) {
	data := tensor(3, [][]float32{
		{320, 320, 100, 200, 0.1, 0.9, 0.2}, // class 1, kept
		{100, 100, 50, 50, 0.3, 0.2, 0.1},   // below threshold
		{64, 64, 32, 32, 0.6, 0.0, 0.55},    // class 0, kept
	})

	got := decodeOutput(data, 7, 3, 0.5, 2, 1)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}

	if got[0].classID != 1 || got[0].score != 0.9 {
		t.Errorf("first = %+v", got[0])
	}
	if want := image.Rect(540, 220, 740, 420); got[0].box != want {
		t.Errorf("first box = %v, want %v", got[0].box, want)
	}
	if got[1].classID != 0 {
		t.Errorf("second class = %d", got[1].classID)
	}
}

func TestDecodeOutputShortTensor(t *testing.T) {
	if got := decodeOutput(make([]float32, 10), 7, 3, 0.5, 1, 1); got != nil {
		t.Errorf("got %v", got)
	}
	if got := decodeOutput(nil, 4, 0, 0.5, 1, 1); got != nil {
		t.Errorf("got %v", got)
	}
}

func TestCandidateDetection(t *testing.T) {
	c := candidate{box: image.Rect(10, 20, 110, 70), score: 0.75, classID: 2}

	det := c.detection([]string{"person", "chair", "door"})
	if det.Class != "door" || det.Confidence != 0.75 {
		t.Errorf("det = %+v", det)
	}
	if det.Box.X != 10 || det.Box.Y != 20 || det.Box.Width != 100 || det.Box.Height != 50 {
		t.Errorf("box = %+v", det.Box)
	}

	if got := c.detection(nil).Class; got != "class 2" {
		t.Errorf("unknown class = %q", got)
	}
}
