package prompt

import (
	"fmt"
	"strings"
)

// Task selects the instruction template
type Task string

const (
	Summarize  Task = "Summarize"
	Proofread  Task = "Proofread"
	Paraphrase Task = "Paraphrase"
	Rewrite    Task = "Rewrite"
)

// Tasks lists every supported task in display order
var Tasks = []Task{Summarize, Proofread, Paraphrase, Rewrite}

// Tone is a stylistic modifier, only meaningful for Rewrite
type Tone string

const (
	Neutral      Tone = "Neutral"
	Professional Tone = "Professional"
	Friendly     Tone = "Friendly"
	Concise      Tone = "Concise"
	Academic     Tone = "Academic"
	Custom       Tone = "Custom"
)

// Tones lists the built-in tones
var Tones = []Tone{Neutral, Professional, Friendly, Concise, Academic, Custom}

// Example is a worked input/output pair embedded in a prompt
type Example struct {
	Input  string `toml:"input" json:"input"`
	Output string `toml:"output" json:"output"`
}

// Request is a single edit request
type Request struct {
	Task       Task   `json:"task"`
	Tone       Tone   `json:"tone"`
	CustomTone string `json:"custom_tone"`
	Text       string `json:"text"`
}

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParseTask matches a task name case-insensitively
func ParseTask(s string) (Task, error) {
	s = strings.TrimSpace(s)
	for _, t := range Tasks {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task: %q", s)
}

// ParseTone matches a built-in tone case-insensitively. Unknown tones are
// returned verbatim; an empty string means Neutral.
func ParseTone(s string) Tone {
	s = strings.TrimSpace(s)
	if s == "" {
		return Neutral
	}
	for _, t := range Tones {
		if strings.EqualFold(string(t), s) {
			return t
		}
	}
	return Tone(s)
}

// Label is the display label used in status lines, e.g. "Rewrite (Friendly)"
func (r Request) Label() string {
	if r.Task == Rewrite {
		return fmt.Sprintf("%s (%s)", r.Task, r.Tone)
	}
	return string(r.Task)
}
