package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", filepath.ToSlash(dir))
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const testConfig = `{
  "log_level": "ERROR",
  "store": {"driver": "sqlite", "dsn": "$DIR/data/bot.db"},
  "processors": {
    "misc": {},
    "timetracker": {"expire_in_background": false}
  },
  "health": {"enabled": false}
}`

func TestDispatchPrintsReplies(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := run(t, "dispatch", "--config", path, "--sender", "jerith", "!ping")
	if err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if out != "jerith: pong.\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatchPersistsAcrossRuns(t *testing.T) {
	path := writeConfig(t, testConfig)

	if _, err := run(t, "dispatch", "--config", path, "!log", "2h", "vumibot,", "docs"); err != nil {
		t.Fatalf("first dispatch error = %v", err)
	}
	out, err := run(t, "dispatch", "--config", path, "!log 1h@2012-2-31 vumibot")
	if err != nil {
		t.Fatalf("second dispatch error = %v", err)
	}
	if out != "console: eep! ValueError: day is out of range for month.\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestTasksListsNothingWhenEmpty(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := run(t, "tasks", "--config", path)
	if err != nil {
		t.Fatalf("tasks error = %v", err)
	}
	if strings.TrimSpace(out) != "PROCESSOR  TASK  DUE  PAYLOAD" {
		t.Fatalf("output = %q", out)
	}
}

func TestUnknownProcessorFails(t *testing.T) {
	path := writeConfig(t, `{"store":{"driver":"sqlite","dsn":"$DIR/bot.db"},"processors":{"nope":{}}}`)
	if _, err := run(t, "dispatch", "--config", path, "!ping"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("dispatch error = %v, want unknown processor", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || out != "sphexbot dev\n" {
		t.Fatalf("version = %q, %v", out, err)
	}
}
