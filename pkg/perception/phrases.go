package perception

import (
	"fmt"
	"strings"
)

// Fixed phrases spoken by the assistant.
const (
	PhraseWelcome        = "Welcome to Perception - Your AI Powered Seeing Assistant! Press start to begin scanning."
	PhraseScanStarted    = "Starting environment scan"
	PhraseScanStopped    = "Scanning stopped"
	PhraseVoiceOn        = "Voice commands activated"
	PhraseVoiceOff       = "Voice commands deactivated"
	PhraseVoiceFailed    = "Voice recognition stopped. Enable voice commands to try again."
	PhraseNoCamera       = "Could not access camera"
	PhraseBackendOffline = "Object detection service is offline. Please check the backend server."
	PhraseDetectFailed   = "Detection service encountered an error. Please try again."
	PhraseNothingYet     = "No objects detected yet"
	PhraseHelp           = "Available commands: Start scanning, Stop scanning, Mute, Unmute, Describe surroundings"
)

// irregular plurals for common detection classes.
var irregular = map[string]string{
	"person":   "people",
	"mouse":    "mice",
	"knife":    "knives",
	"skis":     "skis",
	"sheep":    "sheep",
	"scissors": "scissors",
}

// Plural returns the plural form of a class name.
func Plural(class string) string {
	if p, ok := irregular[class]; ok {
		return p
	}
	for _, suffix := range []string{"s", "sh", "ch", "x"} {
		if strings.HasSuffix(class, suffix) {
			return class + "es"
		}
	}
	return class + "s"
}

// ClassCount is the number of detections of one class.
type ClassCount struct {
	Class string
	Count int
}

// CountByClass groups detections by class in first-seen order.
func CountByClass(dets []Detection) []ClassCount {
	var counts []ClassCount
	index := make(map[string]int)
	for _, d := range dets {
		if i, ok := index[d.Class]; ok {
			counts[i].Count++
			continue
		}
		index[d.Class] = len(counts)
		counts = append(counts, ClassCount{Class: d.Class, Count: 1})
	}
	return counts
}

// Summarize renders grouped counts, e.g. "2 chairs, 1 person".
func Summarize(dets []Detection) string {
	counts := CountByClass(dets)
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		name := c.Class
		if c.Count > 1 {
			name = Plural(c.Class)
		}
		parts = append(parts, fmt.Sprintf("%d %s", c.Count, name))
	}
	return strings.Join(parts, ", ")
}

// DescribePhrase is spoken for the describe command.
func DescribePhrase(dets []Detection) string {
	if len(dets) == 0 {
		return PhraseNothingYet
	}
	return "Environment contains: " + Summarize(dets)
}

// FeedbackPhrase is spoken after a successful scan cycle. It is empty when
// nothing was detected.
func FeedbackPhrase(dets []Detection) string {
	if len(dets) == 0 {
		return ""
	}
	items := make([]string, len(dets))
	for i, d := range dets {
		items[i] = fmt.Sprintf("%s (%d%% confidence)", d.Class, ConfidencePercent(d.Confidence))
	}
	noun := "objects"
	if len(dets) == 1 {
		noun = "object"
	}
	return fmt.Sprintf("Detected %d %s: %s", len(dets), noun, strings.Join(items, ", "))
}

// ConfidencePercent floors a 0-1 confidence to a whole percentage.
func ConfidencePercent(c float64) int {
	if c <= 0 {
		return 0
	}
	if c >= 1 {
		return 100
	}
	return int(c * 100)
}
