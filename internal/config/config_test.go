package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadJSONKeepsProcessorOrder(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"bot_name": "sphex",
		"reply_with_sender": false,
		"processors": {
			"timetracker": {"validity_seconds": 10},
			"memo": {},
			"github": {"default_user": "praekelt", "default_repo": "vumi"},
			"coffee": null
		},
		"store": {"driver": "redis", "addr": "localhost:6390"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.Processors.IDs(), []string{"timetracker", "memo", "github", "coffee"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("processor order = %v, want %v", got, want)
	}
	if cfg.ReplyWithSender {
		t.Fatal("reply_with_sender should be false")
	}
	if cfg.CommandPrefix != "!" {
		t.Fatalf("CommandPrefix = %q, want default", cfg.CommandPrefix)
	}
	if cfg.Store.Driver != StoreDriverRedis || cfg.Store.Addr != "localhost:6390" {
		t.Fatalf("store = %+v", cfg.Store)
	}

	var github struct {
		DefaultUser string `json:"default_user"`
	}
	if err := json.Unmarshal(cfg.Processors[2].Options, &github); err != nil || github.DefaultUser != "praekelt" {
		t.Fatalf("github options = %s (%v)", cfg.Processors[2].Options, err)
	}
}

func TestLoadYAMLKeepsProcessorOrder(t *testing.T) {
	path := writeFile(t, "config.yaml", `
bot_name: sphex
command_prefix: "?"
processors:
  mexican:
  memo: {}
  timetracker:
    validity_seconds: 10
    gist_url: http://localhost:1234/
  misc: {}
scheduler:
  poll_interval_ms: 250
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.Processors.IDs(), []string{"mexican", "memo", "timetracker", "misc"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("processor order = %v, want %v", got, want)
	}
	if cfg.CommandPrefix != "?" || cfg.Scheduler.PollIntervalMS != 250 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.ReplyWithSender {
		t.Fatal("reply_with_sender default lost")
	}

	var options struct {
		ValiditySeconds int    `json:"validity_seconds"`
		GistURL         string `json:"gist_url"`
	}
	if err := json.Unmarshal(cfg.Processors[2].Options, &options); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	if options.ValiditySeconds != 10 || options.GistURL != "http://localhost:1234/" {
		t.Fatalf("options = %+v", options)
	}
}

func TestDuplicateProcessorRejected(t *testing.T) {
	jsonPath := writeFile(t, "dup.json", `{"processors": {"memo": {}, "memo": {}}}`)
	if _, err := Load(jsonPath); err == nil {
		t.Fatal("expected duplicate error from JSON")
	}

	yamlPath := writeFile(t, "dup.yml", "processors:\n  memo: {}\n  memo: {}\n")
	if _, err := Load(yamlPath); err == nil {
		t.Fatal("expected duplicate error from YAML")
	}
}

func TestProcessorsRejectsArray(t *testing.T) {
	var p Processors
	if err := json.Unmarshal([]byte(`["memo"]`), &p); err == nil {
		t.Fatal("expected error for array form")
	}
}

func TestProcessorsMarshalRoundTripKeepsOrder(t *testing.T) {
	in := Processors{
		{ID: "zeta", Options: json.RawMessage(`{"a":1}`)},
		{ID: "alpha"},
	}
	encoded, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(encoded) != `{"zeta":{"a":1},"alpha":null}` {
		t.Fatalf("Marshal() = %s", encoded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"store driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"prefix whitespace", func(c *Config) { c.CommandPrefix = "! " }},
		{"bot name", func(c *Config) { c.BotName = "two words" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"misc", "memo", "coffee", "mexican", "github", "timetracker", "web"}
	if got := cfg.Processors.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	if !cfg.Console.Enabled || cfg.Store.Driver != StoreDriverSQLite {
		t.Fatalf("config = %+v", cfg)
	}
}
