// Package processors registers every built-in processor under its
// configuration id.
package processors

import (
	"sphexbot/internal/processor"
	"sphexbot/internal/processors/coffee"
	"sphexbot/internal/processors/github"
	"sphexbot/internal/processors/memo"
	"sphexbot/internal/processors/mexican"
	"sphexbot/internal/processors/misc"
	"sphexbot/internal/processors/timetracker"
	"sphexbot/internal/processors/web"
)

func Register(r *processor.Registry) {
	r.MustRegister("misc", misc.New)
	r.MustRegister("memo", memo.New)
	r.MustRegister("coffee", coffee.New)
	r.MustRegister("mexican", mexican.New)
	r.MustRegister("github", github.New)
	r.MustRegister("timetracker", timetracker.New)
	r.MustRegister("web", web.New)
}

// Registry returns a registry holding the built-in processors.
func Registry() *processor.Registry {
	r := processor.NewRegistry()
	Register(r)
	return r
}
