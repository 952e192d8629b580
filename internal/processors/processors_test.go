package processors

import (
	"encoding/json"
	"reflect"
	"testing"

	"sphexbot/internal/config"
	"sphexbot/internal/pipeline"
	"sphexbot/internal/processors/processortest"
)

func TestRegistryIDs(t *testing.T) {
	want := []string{"coffee", "github", "memo", "mexican", "misc", "timetracker", "web"}
	if got := Registry().IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
}

func TestEveryProcessorBuildsWithDefaults(t *testing.T) {
	entries := []config.ProcessorEntry{
		{ID: "misc"},
		{ID: "memo"},
		{ID: "coffee"},
		{ID: "mexican"},
		{ID: "github", Options: json.RawMessage(`{"default_user":"praekelt","default_repo":"vumi"}`)},
		{ID: "timetracker", Options: json.RawMessage(`{"expire_in_background":false}`)},
		{ID: "web", Options: json.RawMessage(`{"browser":false}`)},
	}
	p, err := pipeline.Build(Registry(), entries, processortest.Deps(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := p.IDs(); len(got) != len(entries) {
		t.Fatalf("IDs() = %v", got)
	}
	if _, ok := p.Schedulers()["timetracker"]; !ok {
		t.Fatalf("Schedulers() = %v, want timetracker", p.Schedulers())
	}
}
