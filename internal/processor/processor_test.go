package processor

import (
	"encoding/json"
	"reflect"
	"testing"
)

type stub struct {
	Base
	name string
}

func (s stub) Name() string { return s.name }

func stubFactory(name string) Factory {
	return func(Deps, json.RawMessage) (Processor, error) { return stub{name: name}, nil }
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("memo", stubFactory("memo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r.MustRegister("coffee", stubFactory("coffee"))

	if err := r.Register("memo", stubFactory("memo")); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := r.Register(" ", stubFactory("x")); err == nil {
		t.Fatal("expected empty id error")
	}
	if err := r.Register("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}

	if got, want := r.IDs(), []string{"coffee", "memo"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	factory, ok := r.Lookup("memo")
	if !ok {
		t.Fatal("Lookup(memo) not found")
	}
	p, err := factory(Deps{}, nil)
	if err != nil || p.Name() != "memo" {
		t.Fatalf("factory() = %v, %v", p, err)
	}
	if _, ok := r.Lookup("absent"); ok {
		t.Fatal("Lookup(absent) found")
	}
}

func TestDecodeOptions(t *testing.T) {
	type options struct {
		Validity int `json:"validity_seconds"`
	}

	opts := options{Validity: 5}
	for _, raw := range []string{"", "null", "  "} {
		if err := DecodeOptions(json.RawMessage(raw), &opts); err != nil {
			t.Fatalf("DecodeOptions(%q) error = %v", raw, err)
		}
		if opts.Validity != 5 {
			t.Fatalf("DecodeOptions(%q) changed defaults: %+v", raw, opts)
		}
	}

	if err := DecodeOptions(json.RawMessage(`{"validity_seconds": 10}`), &opts); err != nil || opts.Validity != 10 {
		t.Fatalf("DecodeOptions() = %+v, %v", opts, err)
	}
	if err := DecodeOptions(json.RawMessage(`{"validty": 10}`), &opts); err == nil {
		t.Fatal("expected unknown field error")
	}
}
