package core

import (
	"errors"
	"fmt"
)

// Kinded errors name the category shown to users in failure notices.
type Kinded interface {
	Kind() string
}

// ErrorKind returns the first Kind found in err's chain, or "Error".
func ErrorKind(err error) string {
	var kinded Kinded
	if errors.As(err, &kinded) {
		if kind := kinded.Kind(); kind != "" {
			return kind
		}
	}
	return "Error"
}

// ValueError reports input that parsed but is not acceptable, such as a
// date that does not exist.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string { return e.Msg }

func (e *ValueError) Kind() string { return "ValueError" }

func NewValueError(format string, args ...any) *ValueError {
	return &ValueError{Msg: fmt.Sprintf(format, args...)}
}
