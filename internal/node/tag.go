package node

import (
	"fmt"
	"strings"

	"github.com/szibis/sparkplug-edge/internal/sparkplug"
)

// Mode selects how a tag's value evolves between DATA messages.
type Mode string

const (
	// ModeConstant keeps the value until a command writes it.
	ModeConstant Mode = "constant"
	// ModeCounter adds Step on every publish interval.
	ModeCounter Mode = "counter"
	// ModeToggle flips a boolean on every publish interval.
	ModeToggle Mode = "toggle"
)

// ParseMode parses a tag mode. An empty string is ModeConstant.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeConstant:
		return ModeConstant, nil
	case ModeCounter:
		return ModeCounter, nil
	case ModeToggle:
		return ModeToggle, nil
	default:
		return "", fmt.Errorf("unknown tag mode %q", s)
	}
}

// TagConfig describes one published tag.
type TagConfig struct {
	Name     string
	Alias    uint64
	Datatype sparkplug.DataType
	Mode     Mode
	Value    float64
	Step     float64
	Writable bool
}

type tag struct {
	cfg     TagConfig
	value   float64
	changed bool
}

func newTag(cfg TagConfig) *tag {
	if cfg.Mode == "" {
		cfg.Mode = ModeConstant
	}
	if cfg.Mode == ModeCounter && cfg.Step == 0 {
		cfg.Step = 1
	}
	return &tag{cfg: cfg, value: cfg.Value}
}

// advance applies the generator and reports whether the value changed.
func (t *tag) advance() bool {
	switch t.cfg.Mode {
	case ModeCounter:
		t.value += t.cfg.Step
		t.changed = true
	case ModeToggle:
		if t.value != 0 {
			t.value = 0
		} else {
			t.value = 1
		}
		t.changed = true
	}
	return t.changed
}

func (t *tag) set(v float64) {
	if t.cfg.Datatype == sparkplug.DataTypeBoolean && v != 0 {
		v = 1
	}
	t.value = v
	t.changed = true
}

// fill writes the tag into m. Births carry the name; DATA messages refer to
// the tag by alias only.
func (t *tag) fill(m *sparkplug.Metric, birth bool, ts uint64) error {
	if birth {
		if err := m.SetName(t.cfg.Name); err != nil {
			return fmt.Errorf("tag %q: %w", t.cfg.Name, err)
		}
	}
	m.SetAlias(t.cfg.Alias)
	m.SetTimestamp(ts)
	if err := m.SetValue(t.cfg.Datatype, t.value); err != nil {
		return fmt.Errorf("tag %q: %w", t.cfg.Name, err)
	}
	return nil
}

func (t *tag) current() sparkplug.Value {
	var m sparkplug.Metric
	_ = m.SetValue(t.cfg.Datatype, t.value)
	return m.Value
}
