// Package command implements named, pattern-matched bot commands: splitting
// "name remainder" input, matching the remainder against a declared
// pattern and handing the captures to the command's handler.
package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"sphexbot/internal/core"
)

// Handler runs a command whose pattern matched.
type Handler func(ctx context.Context, msg core.Message, args Captures) ([]core.Reply, error)

// Spec declares one command. Specs are built once when a processor is
// constructed and never change afterwards.
type Spec struct {
	Name    string
	Pattern *regexp.Regexp
	Help    string
	Handler Handler
}

// Captures holds the groups of a successful match. Positional lists every
// group in order, named ones included; groups that did not participate
// are "".
type Captures struct {
	Positional []string
	Named      map[string]string
}

// Get returns a named group or "".
func (c Captures) Get(name string) string {
	if c.Named == nil {
		return ""
	}
	return c.Named[name]
}

// FormatError reports a remainder that did not match the command pattern.
type FormatError struct {
	Command string
	Help    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("command %s: input does not match pattern", e.Command)
}

func (e *FormatError) Kind() string { return "CommandFormatError" }

// Reply is the single user-facing reply for a format error.
func (e *FormatError) Reply() string {
	return "that does not compute. " + e.Help
}

// Split separates a command line into the command name and the remainder.
// Leading whitespace is ignored and the remainder starts at the first
// non-space after the name.
func Split(text string) (name string, remainder string) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimLeftFunc(text[idx:], unicode.IsSpace)
}

// Match matches the trimmed remainder against the spec's pattern.
func Match(spec Spec, remainder string) (Captures, error) {
	remainder = strings.TrimSpace(remainder)
	loc := spec.Pattern.FindStringSubmatchIndex(remainder)
	if loc == nil {
		return Captures{}, &FormatError{Command: spec.Name, Help: spec.Help}
	}

	names := spec.Pattern.SubexpNames()
	captures := Captures{
		Positional: make([]string, 0, len(names)-1),
		Named:      make(map[string]string),
	}
	for i := 1; i < len(names); i++ {
		value := ""
		if start, end := loc[2*i], loc[2*i+1]; start >= 0 {
			value = remainder[start:end]
		}
		captures.Positional = append(captures.Positional, value)
		if names[i] != "" {
			captures.Named[names[i]] = value
		}
	}
	return captures, nil
}

// Invoke matches the remainder and calls the handler on success.
func Invoke(ctx context.Context, spec Spec, msg core.Message, remainder string) ([]core.Reply, error) {
	captures, err := Match(spec, remainder)
	if err != nil {
		return nil, err
	}
	return spec.Handler(ctx, msg, captures)
}

// IsFormatError reports whether err is a pattern mismatch.
func IsFormatError(err error) bool {
	var formatErr *FormatError
	return errors.As(err, &formatErr)
}
