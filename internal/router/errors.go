package router

import (
	"fmt"
	"strings"

	"sphexbot/internal/core"
)

type Phase string

const (
	PhaseObserve Phase = "observe"
	PhaseCommand Phase = "command"
)

// ProcessorError is a failure inside one processor's observe hook or
// command handler. It never reaches other processors.
type ProcessorError struct {
	Processor string
	Phase     Phase
	Command   string
	Err       error
}

func (e *ProcessorError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("processor %s %s %s: %v", e.Processor, e.Phase, e.Command, e.Err)
	}
	return fmt.Sprintf("processor %s %s: %v", e.Processor, e.Phase, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

func (e *ProcessorError) Kind() string { return core.ErrorKind(e.Err) }

// Notice is the terse user-facing rendering: "eep! <kind>: <message>.".
func (e *ProcessorError) Notice() string {
	message := strings.TrimRight(strings.TrimSpace(e.Err.Error()), ".")
	return fmt.Sprintf("eep! %s: %s.", e.Kind(), message)
}

// PanicError carries a value recovered from a processor.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprint(e.Value) }

func (e *PanicError) Kind() string { return "panic" }
