package command

import "testing"

func TestRoute(t *testing.T) {
	tests := []struct {
		utterance string
		want      Action
		ok        bool
	}{
		{"start scanning", StartScan, true},
		{"  Please START SCAN now ", StartScan, true},
		{"stop scanning", StopScan, true},
		{"mute", Mute, true},
		{"mute please", Mute, true},
		{"unmute", Unmute, true},
		{"Unmute the voice", Unmute, true},
		{"describe my surroundings", Describe, true},
		{"describe surroundings", Describe, true},
		{"help", Help, true},
		{"can you help me", Help, true},
		{"what time is it", None, false},
		{"", None, false},
		{"   ", None, false},
	}

	for _, tc := range tests {
		t.Run(tc.utterance, func(t *testing.T) {
			got, ok := Route(tc.utterance)
			if got != tc.want || ok != tc.ok {
				t.Errorf("Route(%q) = (%v, %v), want (%v, %v)", tc.utterance, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestRoutePriority(t *testing.T) {
	tests := []struct {
		utterance string
		want      Action
	}{
		// start beats stop when both appear
		{"stop scan then start scan", StartScan},
		// scan commands beat everything else
		{"start scan and mute", StartScan},
		{"mute and describe", Mute},
		{"unmute and describe", Unmute},
		{"describe and help", Describe},
	}

	for _, tc := range tests {
		if got, _ := Route(tc.utterance); got != tc.want {
			t.Errorf("Route(%q) = %v, want %v", tc.utterance, got, tc.want)
		}
	}
}

func TestRouteIsPure(t *testing.T) {
	a, _ := Route("mute")
	b, _ := Route("mute")
	if a != b {
		t.Errorf("Route is not deterministic: %v vs %v", a, b)
	}
}

func TestCommandsAllRoute(t *testing.T) {
	for _, phrase := range Commands() {
		if _, ok := Route(phrase); !ok {
			t.Errorf("advertised command %q does not route", phrase)
		}
	}
}

func TestActionString(t *testing.T) {
	if StartScan.String() != "start_scan" || None.String() != "none" {
		t.Errorf("unexpected names: %s, %s", StartScan, None)
	}
}
