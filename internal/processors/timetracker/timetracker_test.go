package timetracker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"sphexbot/internal/httpclient"
	"sphexbot/internal/logging"
	"sphexbot/internal/processors/processortest"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type gistServer struct {
	mu           sync.Mutex
	created      []gistRequest
	deleted      []string
	deleteStatus int
}

func (g *gistServer) handler(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/gists":
		var req gistRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.created = append(g.created, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"abc123","html_url":"https://gist.example/abc123"}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/gists/abc123":
		g.deleted = append(g.deleted, "abc123")
		status := g.deleteStatus
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (g *gistServer) setDeleteStatus(status int) {
	g.mu.Lock()
	g.deleteStatus = status
	g.mu.Unlock()
}

func (g *gistServer) snapshot() ([]gistRequest, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gistRequest(nil), g.created...), append([]string(nil), g.deleted...)
}

type fixture struct {
	proc    *Processor
	harness *processortest.Harness
	clock   *clock
	server  *gistServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gs := &gistServer{}
	srv := httptest.NewServer(http.HandlerFunc(gs.handler))
	t.Cleanup(srv.Close)

	c := &clock{now: time.Date(2012, 2, 5, 14, 0, 0, 0, time.UTC)}
	deps := processortest.Deps(t)
	deps.Now = c.Now
	deps.HTTP = httpclient.New(httpclient.Config{}, logging.Discard())

	options := json.RawMessage(`{"api_url":"` + srv.URL + `","validity_seconds":10,"expire_in_background":false}`)
	proc, err := New(deps, options)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p := proc.(*Processor)
	return &fixture{proc: p, harness: processortest.NewPlain(t, p), clock: c, server: gs}
}

func (f *fixture) records(t *testing.T, user string) []Record {
	t.Helper()
	records, err := f.proc.Records(context.Background(), user)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	return records
}

func TestLogStoresRecord(t *testing.T) {
	f := newFixture(t)

	got := processortest.Texts(f.harness.Send("!log 4h vumibot, writing tests"))
	if want := []string{"Logged 4h on vumibot for 2012-02-05."}; !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	f.harness.Send("!log 30m vumibot")

	want := []Record{
		{Date: "2012-02-05", Time: "14400", Project: "vumibot", Notes: "writing tests"},
		{Date: "2012-02-05", Time: "1800", Project: "vumibot", Notes: ""},
	}
	if got := f.records(t, "testnick"); !reflect.DeepEqual(got, want) {
		t.Fatalf("records = %+v, want %+v", got, want)
	}
}

func TestLogBackdates(t *testing.T) {
	f := newFixture(t)
	f.harness.Send("!log 1h@yesterday vumibot")
	f.harness.Send("!log 2h@2012-2-4 vumibot, earlier")
	f.harness.Send("!log 1d@2011-12-31 halxe")

	got := f.records(t, "testnick")
	if len(got) != 3 {
		t.Fatalf("records = %+v", got)
	}
	if got[0].Date != "2012-02-04" || got[1].Date != "2012-02-04" || got[2].Date != "2011-12-31" {
		t.Fatalf("dates = %q %q %q", got[0].Date, got[1].Date, got[2].Date)
	}
	if got[2].Time != "28800" {
		t.Fatalf("a day = %s seconds, want a working day", got[2].Time)
	}
}

func TestLogRejectsInvalidDate(t *testing.T) {
	f := newFixture(t)
	got := processortest.Texts(f.harness.Send("!log 4h@2012-2-31 vumibot"))
	if want := []string{"eep! ValueError: day is out of range for month."}; !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	if records := f.records(t, "testnick"); len(records) != 0 {
		t.Fatalf("records = %+v, want none", records)
	}
}

func TestLogRejectsOversizedDuration(t *testing.T) {
	f := newFixture(t)
	got := processortest.Texts(f.harness.Send("!log 999999999999999d vumibot"))
	if want := []string{`eep! ValueError: duration "999999999999999d" is out of range.`}; !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	if records := f.records(t, "testnick"); len(records) != 0 {
		t.Fatalf("records = %+v, want none", records)
	}
}

func TestLogBadFormatGivesHelp(t *testing.T) {
	f := newFixture(t)
	got := processortest.Texts(f.harness.Send("!log foo bar baz"))
	if len(got) != 1 || got[0] != "that does not compute. "+f.proc.Commands().Specs()[0].Help {
		t.Fatalf("replies = %q", got)
	}
}

func TestPublishAndExpire(t *testing.T) {
	f := newFixture(t)
	f.harness.Send("!log 4h vumibot, writing tests", processortest.From("jïd@domain.net/resource"))

	got := processortest.Texts(f.harness.Send("!publish"))
	if want := []string{"https://gist.example/abc123 (valid for 10s)"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}

	created, _ := f.server.snapshot()
	if len(created) != 1 {
		t.Fatalf("gists created = %d, want 1", len(created))
	}
	req := created[0]
	if req.Public || req.Description == "" {
		t.Fatalf("gist request = %+v, want private with description", req)
	}
	wantFiles := map[string]gistFile{
		"jid-domain-net-resource.csv": {Content: "date,time,project,notes\n2012-02-05,14400,vumibot,writing tests\n"},
	}
	if !reflect.DeepEqual(req.Files, wantFiles) {
		t.Fatalf("files = %+v, want %+v", req.Files, wantFiles)
	}

	got = processortest.Texts(f.harness.Send("!published"))
	if want := []string{"https://gist.example/abc123 | expires 2012-02-05T14:00:10Z"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("published = %q, want %q", got, want)
	}

	ctx := context.Background()
	scheduler := f.proc.Scheduler()
	pending, err := scheduler.Pending(ctx)
	if err != nil || len(pending) != 1 || string(pending[0].Payload) != "abc123" {
		t.Fatalf("Pending() = %+v, %v", pending, err)
	}

	if result, _ := scheduler.Tick(ctx); result.Due != 0 {
		t.Fatalf("tick before expiry = %+v", result)
	}
	f.clock.Advance(11 * time.Second)
	result, err := scheduler.Tick(ctx)
	if err != nil || result.Completed != 1 {
		t.Fatalf("Tick() = %+v, %v", result, err)
	}
	if _, deleted := f.server.snapshot(); !reflect.DeepEqual(deleted, []string{"abc123"}) {
		t.Fatalf("deleted = %v", deleted)
	}
	if got := processortest.Texts(f.harness.Send("!published")); !reflect.DeepEqual(got, []string{"No published logs."}) {
		t.Fatalf("published after expiry = %q", got)
	}
}

func TestExpiryTreatsMissingGistAsDeleted(t *testing.T) {
	f := newFixture(t)
	f.server.setDeleteStatus(http.StatusNotFound)
	f.harness.Send("!log 1h vumibot")
	f.harness.Send("!publish")

	f.clock.Advance(time.Minute)
	result, err := f.proc.Scheduler().Tick(context.Background())
	if err != nil || result.Completed != 1 || result.Failed != 0 {
		t.Fatalf("Tick() = %+v, %v", result, err)
	}
}

func TestExpiryRetriesServerErrors(t *testing.T) {
	f := newFixture(t)
	f.server.setDeleteStatus(http.StatusBadGateway)
	f.harness.Send("!log 1h vumibot")
	f.harness.Send("!publish")

	ctx := context.Background()
	f.clock.Advance(time.Minute)
	result, err := f.proc.Scheduler().Tick(ctx)
	if err != nil || result.Failed != 1 {
		t.Fatalf("Tick() = %+v, %v", result, err)
	}

	f.server.setDeleteStatus(http.StatusNoContent)
	result, err = f.proc.Scheduler().Tick(ctx)
	if err != nil || result.Completed != 1 {
		t.Fatalf("retry Tick() = %+v, %v", result, err)
	}
	if _, deleted := f.server.snapshot(); len(deleted) != 2 {
		t.Fatalf("delete attempts = %v, want 2", deleted)
	}
}

func TestPublishWithNothingLogged(t *testing.T) {
	f := newFixture(t)
	got := processortest.Texts(f.harness.Send("!publish"))
	if !reflect.DeepEqual(got, []string{"Nothing logged yet."}) {
		t.Fatalf("replies = %q", got)
	}
	if created, _ := f.server.snapshot(); len(created) != 0 {
		t.Fatalf("gists created = %d", len(created))
	}
}

func TestFileName(t *testing.T) {
	cases := map[string]string{
		"jïd@domain.net/resource": "jid-domain-net-resource.csv",
		"Tester 123":              "tester-123.csv",
		"@@@":                     "anonymous.csv",
	}
	for in, want := range cases {
		if got := fileName(in); got != want {
			t.Errorf("fileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2012, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		in, want, err string
	}{
		{in: "", want: "2012-03-01"},
		{in: "yesterday", want: "2012-02-29"},
		{in: "2012-2-29", want: "2012-02-29"},
		{in: "2011-2-29", err: "day is out of range for month"},
		{in: "2012-13-1", err: "month must be in 1..12"},
		{in: "someday", err: `unknown date "someday"`},
	}
	for _, tc := range cases {
		got, err := resolveDate(tc.in, now)
		if tc.err != "" {
			if err == nil || err.Error() != tc.err {
				t.Errorf("resolveDate(%q) error = %v, want %q", tc.in, err, tc.err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("resolveDate(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  string
	}{
		{in: "30m", want: 1800},
		{in: "4h", want: 14400},
		{in: "2d", want: 57600},
		{in: "3w", err: `invalid duration unit in "3w"`},
		{in: "-1h", err: `duration "-1h" is out of range`},
		{in: "999999999999999d", err: `duration "999999999999999d" is out of range`},
		{in: "99999999999999999999m", err: `invalid duration "99999999999999999999m"`},
	}
	for _, tc := range cases {
		got, err := parseDuration(tc.in)
		if tc.err != "" {
			if err == nil || err.Error() != tc.err {
				t.Errorf("parseDuration(%q) = %d, %v, want error %q", tc.in, got, err, tc.err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseDuration(%q) = %d, %v, want %d", tc.in, got, err, tc.want)
		}
	}
}
