// Package mode holds the fixed set of analysis modes and the configuration
// table that drives them: labels, seed prompts, placeholders and the
// optional regenerate action.
package mode

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Mode int

const (
	Chat Mode = iota
	Caption
	Recipe
	Fashion
	Travel
	Document
	FunFact

	count
)

// All lists every mode in selector order.
var All = []Mode{Chat, Caption, Recipe, Fashion, Travel, Document, FunFact}

var keys = [count]string{"chat", "caption", "recipe", "fashion", "travel", "document", "funfact"}

// Sentinel is the phrase a guarded mode's seed reply carries when the model
// judged the image unsuitable. Matching is a case-sensitive substring check
// and can misfire if a legitimate reply happens to quote it.
const Sentinel = "Out of context image"

func (m Mode) Key() string {
	if m < 0 || m >= count {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return keys[m]
}

func (m Mode) String() string { return m.Key() }

// Parse resolves a mode key such as "recipe".
func Parse(key string) (Mode, error) {
	for i, k := range keys {
		if k == key {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", key)
}

// Regenerate configures the "give me another" action.
type Regenerate struct {
	Label  string `yaml:"label"`
	Prompt string `yaml:"prompt"`
	// Replace rewrites the latest assistant turn instead of appending one.
	Replace bool `yaml:"replace"`
}

type Spec struct {
	Mode        Mode        `yaml:"-"`
	Key         string      `yaml:"key"`
	Label       string      `yaml:"label"`
	Subheader   string      `yaml:"subheader"`
	Seed        string      `yaml:"seed"`
	Placeholder string      `yaml:"placeholder"`
	Guarded     bool        `yaml:"guarded"`
	Regenerate  *Regenerate `yaml:"regenerate"`
}

type document struct {
	Guardrail string `yaml:"guardrail"`
	Modes     []Spec `yaml:"modes"`
}

type Table struct {
	guardrail string
	specs     [count]Spec
}

//go:embed modes.yaml
var defaultModes []byte

// Default returns the built-in table.
func Default() *Table {
	t, err := Load(defaultModes)
	if err != nil {
		panic(fmt.Sprintf("embedded mode table is invalid: %v", err))
	}
	return t
}

// LoadFile reads a table from path. An empty path yields the built-in table.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mode table: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML mode table.
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mode table: %w", err)
	}

	t := &Table{guardrail: strings.TrimSpace(doc.Guardrail)}
	var seen [count]bool
	for _, s := range doc.Modes {
		m, err := Parse(s.Key)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			return nil, fmt.Errorf("mode %q defined twice", s.Key)
		}
		if strings.TrimSpace(s.Seed) == "" {
			return nil, fmt.Errorf("mode %q has no seed prompt", s.Key)
		}
		if s.Label == "" {
			s.Label = s.Key
		}
		if s.Regenerate != nil && strings.TrimSpace(s.Regenerate.Prompt) == "" {
			return nil, fmt.Errorf("mode %q has a regenerate action without a prompt", s.Key)
		}
		s.Mode = m
		seen[m] = true
		t.specs[m] = s
	}

	for m, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("mode %q missing from table", Mode(m).Key())
		}
	}
	// Chat is the open conversation; it never freezes input.
	if t.specs[Chat].Guarded {
		return nil, fmt.Errorf("mode %q cannot be guarded", Chat.Key())
	}
	if t.guardrail == "" {
		return nil, fmt.Errorf("mode table has no guardrail text")
	}

	return t, nil
}

func (t *Table) Spec(m Mode) Spec {
	return t.specs[m]
}

// Specs returns every mode's spec in selector order.
func (t *Table) Specs() []Spec {
	out := make([]Spec, 0, len(All))
	for _, m := range All {
		out = append(out, t.specs[m])
	}
	return out
}

// SeedPrompt is the first instruction sent on a fresh handle.
func (t *Table) SeedPrompt(m Mode) string {
	s := t.specs[m]
	seed := strings.TrimSpace(s.Seed)
	if !s.Guarded {
		return seed
	}
	return seed + "\n\n" + t.guardrail
}

// OutOfContext reports whether a seed reply for m freezes the mode.
func (t *Table) OutOfContext(m Mode, reply string) bool {
	return t.specs[m].Guarded && strings.Contains(reply, Sentinel)
}
