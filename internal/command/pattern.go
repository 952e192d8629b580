package command

import (
	"fmt"
	"regexp"
	"strings"
)

// Compile compiles a pattern with match semantics: it must match at the
// start of the remainder, but need not consume all of it.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile command pattern %q: %w", pattern, err)
	}
	return re, nil
}

// CompileExtended is Compile for verbose patterns: whitespace and
// #-comments are ignored unless escaped or inside a character class.
func CompileExtended(pattern string) (*regexp.Regexp, error) {
	return Compile(stripVerbose(pattern))
}

func MustCompile(pattern string) *regexp.Regexp {
	re, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

func MustCompileExtended(pattern string) *regexp.Regexp {
	re, err := CompileExtended(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

func stripVerbose(pattern string) string {
	var out strings.Builder
	out.Grow(len(pattern))

	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			if i+1 < len(pattern) {
				next := pattern[i+1]
				// An escaped space or hash keeps its literal meaning.
				if !inClass && (next == ' ' || next == '#') {
					out.WriteByte(next)
				} else {
					out.WriteByte(c)
					out.WriteByte(next)
				}
				i++
				continue
			}
			out.WriteByte(c)
		case inClass:
			if c == ']' {
				inClass = false
			}
			out.WriteByte(c)
		case c == '[':
			inClass = true
			out.WriteByte(c)
			// A leading ] or ^] is part of the class.
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				out.WriteByte('^')
				i++
			}
			if i+1 < len(pattern) && pattern[i+1] == ']' {
				out.WriteByte(']')
				i++
			}
		case c == '#':
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}
