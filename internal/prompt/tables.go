package prompt

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"
)

//go:embed tables.toml
var tablesTOML string

// defaultSet is the generic example set used when no task or tone set exists
const defaultSet = "default"

type tableSet struct {
	Instructions    map[string]string    `toml:"instructions"`
	Tones           map[string]string    `toml:"tones"`
	Examples        map[string][]Example `toml:"examples"`
	RewriteExamples map[string][]Example `toml:"rewrite_examples"`
	Server          serverTables         `toml:"server"`
	Chat            chatTables           `toml:"chat"`
}

type serverTables struct {
	Tasks    map[string]string `toml:"tasks"`
	Rewrite  map[string]string `toml:"rewrite"`
	Fallback struct {
		Custom  string `toml:"custom"`
		Open    string `toml:"open"`
		Generic string `toml:"generic"`
	} `toml:"fallback"`
}

type chatTables struct {
	System       string `toml:"system"`
	ServerSystem string `toml:"server_system"`
}

var tables = mustLoadTables(tablesTOML)

func mustLoadTables(data string) *tableSet {
	t, err := loadTables(data)
	if err != nil {
		panic(err)
	}
	return t
}

func loadTables(data string) (*tableSet, error) {
	var t tableSet
	if _, err := toml.Decode(data, &t); err != nil {
		return nil, fmt.Errorf("decoding prompt tables: %w", err)
	}
	for _, task := range Tasks {
		if t.Instructions[string(task)] == "" {
			return nil, fmt.Errorf("prompt tables: missing instruction for %s", task)
		}
	}
	if len(t.Examples[defaultSet]) == 0 {
		return nil, fmt.Errorf("prompt tables: missing %q example set", defaultSet)
	}
	return &t, nil
}

// Examples returns the few-shot set used for a task and tone. Rewrite picks
// the tone set, other tasks the task set; both fall back to the default set.
func Examples(task Task, tone Tone) []Example {
	var set []Example
	if task == Rewrite {
		set = tables.RewriteExamples[string(tone)]
	} else {
		set = tables.Examples[string(task)]
	}
	if len(set) == 0 {
		set = tables.Examples[defaultSet]
	}
	out := make([]Example, len(set))
	copy(out, set)
	return out
}
