package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Table is the ordered, immutable set of commands owned by one processor.
type Table struct {
	specs  []Spec
	byName map[string]int
}

// NewTable validates the specs and indexes them by name. Names are unique
// within a table; the same name in two different tables is allowed.
func NewTable(specs ...Spec) (*Table, error) {
	table := &Table{
		specs:  make([]Spec, 0, len(specs)),
		byName: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		if _, exists := table.byName[spec.Name]; exists {
			return nil, fmt.Errorf("command %q declared twice", spec.Name)
		}
		table.byName[spec.Name] = len(table.specs)
		table.specs = append(table.specs, spec)
	}
	return table, nil
}

// MustTable is NewTable for static declarations.
func MustTable(specs ...Spec) *Table {
	table, err := NewTable(specs...)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup finds a command by exact, case-sensitive name.
func (t *Table) Lookup(name string) (Spec, bool) {
	if t == nil {
		return Spec{}, false
	}
	idx, ok := t.byName[name]
	if !ok {
		return Spec{}, false
	}
	return t.specs[idx], true
}

// Specs returns the commands in declaration order.
func (t *Table) Specs() []Spec {
	if t == nil {
		return nil
	}
	out := make([]Spec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Names returns the command names in declaration order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.specs))
	for _, spec := range t.specs {
		names = append(names, spec.Name)
	}
	return names
}

// Len returns the number of commands.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.specs)
}

func validateSpec(spec Spec) error {
	name := spec.Name
	if name == "" {
		return errors.New("command name is required")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("command %q: name must not contain whitespace", name)
	}
	if spec.Pattern == nil {
		return fmt.Errorf("command %q: pattern is required", name)
	}
	if spec.Handler == nil {
		return fmt.Errorf("command %q: handler is required", name)
	}
	return nil
}
