// Package timetracker logs work per user and publishes the logs as
// short-lived private gists.
package timetracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/httpclient"
	"sphexbot/internal/processor"
	"sphexbot/internal/schedule"
	"sphexbot/internal/store"
)

const (
	defaultAPIURL   = "https://api.github.com"
	defaultValidity = 3600
)

type Options struct {
	Token           string `json:"auth_token"`
	APIURL          string `json:"api_url"`
	ValiditySeconds int    `json:"validity_seconds"`
	// Background polls the expiry scheduler between Setup and Teardown.
	Background *bool `json:"expire_in_background"`
}

func (o Options) validity() time.Duration {
	return time.Duration(o.ValiditySeconds) * time.Second
}

type Processor struct {
	processor.Base
	opts      Options
	ledger    ledger
	gists     *gists
	scheduler *schedule.Scheduler
	now       func() time.Time
	logger    *slog.Logger
	commands  *command.Table
}

var logPattern = command.MustCompileExtended(`
	(?P<time>\d+[mhd])              # 30m, 4h or 2d
	(@(?P<date>[a-z0-9\-]+))?       # optional @yesterday or @2012-2-4
	\s+
	(?P<project>[^,]+)
	(,\s)?
	(?P<notes>.*)$
`)

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	opts := Options{APIURL: defaultAPIURL, ValiditySeconds: defaultValidity}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.ValiditySeconds <= 0 {
		return nil, fmt.Errorf("validity_seconds must be positive, got %d", opts.ValiditySeconds)
	}
	if deps.Store == nil {
		return nil, errors.New("timetracker needs a store")
	}

	client := deps.HTTP
	if client == nil {
		client = httpclient.New(httpclient.Config{}, deps.Log())
	}
	client = client.WithBaseURL(opts.APIURL)
	if opts.Token != "" {
		client = client.WithToken(opts.Token)
	}

	p := &Processor{
		opts:   opts,
		ledger: ledger{store: deps.Store},
		now:    deps.Clock(),
		logger: deps.Log(),
	}
	p.gists = &gists{client: client, store: deps.Store}

	schedulerOpts := []schedule.Option{
		schedule.WithClock(p.now),
		schedule.WithLogger(p.logger.With("component", "scheduler")),
	}
	if deps.SchedulerInterval > 0 {
		schedulerOpts = append(schedulerOpts, schedule.WithInterval(deps.SchedulerInterval))
	}
	scheduler, err := schedule.New(store.WithPrefix(deps.Store, "scheduler"), p.expire, schedulerOpts...)
	if err != nil {
		return nil, err
	}
	p.scheduler = scheduler

	p.commands = command.MustTable(
		command.Spec{
			Name:    "log",
			Pattern: logPattern,
			Help:    "Usage: !log <time>[@<date>] <project>[, <notes>] where time is like 30m, 4h or 1d and date is yesterday or YYYY-MM-DD",
			Handler: p.log,
		},
		command.Spec{
			Name:    "publish",
			Pattern: command.MustCompile(`\s*$`),
			Help:    "Usage: !publish",
			Handler: p.publish,
		},
		command.Spec{
			Name:    "published",
			Pattern: command.MustCompile(`\s*$`),
			Help:    "Usage: !published",
			Handler: p.published,
		},
	)
	return p, nil
}

func (p *Processor) Name() string { return "timetracker" }

func (p *Processor) Commands() *command.Table { return p.commands }

func (p *Processor) Scheduler() *schedule.Scheduler { return p.scheduler }

func (p *Processor) Setup(ctx context.Context) error {
	if p.opts.Background == nil || *p.opts.Background {
		p.scheduler.Start(context.WithoutCancel(ctx))
	}
	return nil
}

func (p *Processor) Teardown(context.Context) error {
	p.scheduler.Stop()
	return nil
}

// Records returns what user has logged so far, oldest first.
func (p *Processor) Records(ctx context.Context, user string) ([]Record, error) {
	return p.ledger.records(ctx, user)
}

func (p *Processor) log(ctx context.Context, msg core.Message, args command.Captures) ([]core.Reply, error) {
	seconds, err := parseDuration(args.Get("time"))
	if err != nil {
		return nil, err
	}
	date, err := resolveDate(args.Get("date"), p.now().UTC())
	if err != nil {
		return nil, err
	}
	record := Record{
		Date:    date,
		Time:    strconv.FormatInt(seconds, 10),
		Project: strings.TrimSpace(args.Get("project")),
		Notes:   strings.TrimSpace(args.Get("notes")),
	}
	if err := p.ledger.add(ctx, msg.SenderID, record); err != nil {
		return nil, err
	}
	return core.Text(fmt.Sprintf("Logged %s on %s for %s.", args.Get("time"), record.Project, record.Date)), nil
}

func (p *Processor) publish(ctx context.Context, _ core.Message, _ command.Captures) ([]core.Reply, error) {
	files, err := p.dump(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return core.Text("Nothing logged yet."), nil
	}

	now := p.now().UTC()
	description := fmt.Sprintf("Time tracking data published on %s", now.Format(time.RFC3339))
	gist, err := p.gists.create(ctx, description, files)
	if err != nil {
		return nil, err
	}
	expires := now.Add(p.opts.validity())
	if err := p.gists.remember(ctx, gist, now, expires); err != nil {
		return nil, err
	}
	if _, err := p.scheduler.Schedule(ctx, p.opts.validity(), []byte(gist.ID)); err != nil {
		return nil, err
	}
	p.logger.Info("work log published", "gist_id", gist.ID, "files", len(files), "expires", expires)
	return core.Text(fmt.Sprintf("%s (valid for %s)", gist.HTMLURL, p.opts.validity())), nil
}

func (p *Processor) published(ctx context.Context, _ core.Message, _ command.Captures) ([]core.Reply, error) {
	active, err := p.gists.active(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return core.Text("No published logs."), nil
	}
	lines := make([]string, 0, len(active))
	for _, gist := range active {
		lines = append(lines, fmt.Sprintf("%s | expires %s", gist.HTMLURL, gist.Expires.UTC().Format(time.RFC3339)))
	}
	return core.Text(lines...), nil
}

// dump renders every user's records as CSV files keyed by file name.
func (p *Processor) dump(ctx context.Context) (map[string]string, error) {
	users, err := p.ledger.users(ctx)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(users))
	for _, user := range users {
		records, err := p.ledger.records(ctx, user)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		content, err := renderCSV(records)
		if err != nil {
			return nil, err
		}
		files[fileName(user)] = content
	}
	return files, nil
}

// expire is the scheduler callback; payload is a gist id.
func (p *Processor) expire(ctx context.Context, due time.Time, payload []byte) error {
	id := string(payload)
	if err := p.gists.delete(ctx, id); err != nil {
		return err
	}
	p.logger.Info("published work log expired", "gist_id", id, "due", due)
	return nil
}
