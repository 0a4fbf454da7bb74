// Package command maps recognized utterances to assistant actions.
package command

import "strings"

// Action is something a voice command asks the assistant to do.
type Action int

const (
	None Action = iota
	StartScan
	StopScan
	Mute
	Unmute
	Describe
	Help
)

func (a Action) String() string {
	switch a {
	case StartScan:
		return "start_scan"
	case StopScan:
		return "stop_scan"
	case Mute:
		return "mute"
	case Unmute:
		return "unmute"
	case Describe:
		return "describe"
	case Help:
		return "help"
	default:
		return "none"
	}
}

// rule matches one action. Rules are evaluated in order.
type rule struct {
	action Action
	match  func(s string) bool
}

var rules = []rule{
	{StartScan, contains("start scan")},
	{StopScan, contains("stop scan")},
	{Mute, func(s string) bool {
		return strings.Contains(strings.ReplaceAll(s, "unmute", ""), "mute")
	}},
	{Unmute, contains("unmute")},
	{Describe, contains("describe")},
	{Help, contains("help")},
}

func contains(phrase string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, phrase) }
}

// Route returns the action for an utterance. The second result is false
// when the utterance matches no command.
func Route(utterance string) (Action, bool) {
	s := Normalize(utterance)
	if s == "" {
		return None, false
	}
	for _, r := range rules {
		if r.match(s) {
			return r.action, true
		}
	}
	return None, false
}

// Normalize case-folds and trims an utterance.
func Normalize(utterance string) string {
	return strings.ToLower(strings.TrimSpace(utterance))
}

// Commands lists the spoken command phrases.
func Commands() []string {
	return []string{
		"start scanning",
		"stop scanning",
		"mute",
		"unmute",
		"describe",
		"help",
	}
}
