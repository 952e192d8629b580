// Package web answers !fetch and !browse with the text of a web page.
package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/httpclient"
	"sphexbot/internal/processor"
)

const defaultMaxChars = 400

type Options struct {
	MaxChars           int   `json:"max_chars"`
	Browser            *bool `json:"browser"`
	IdleTimeoutSeconds int   `json:"idle_timeout_seconds"`
}

// renderer is the headless fallback behind !browse.
type renderer interface {
	Render(ctx context.Context, target string) (string, error)
}

type Processor struct {
	processor.Base
	opts     Options
	deps     processor.Deps
	fetcher  *Fetcher
	commands *command.Table

	mu      sync.Mutex
	browser renderer
	closer  func() error
}

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	opts := Options{MaxChars: defaultMaxChars}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxChars
	}

	client := deps.HTTP
	if client == nil {
		client = httpclient.New(httpclient.Config{}, deps.Log())
	}

	p := &Processor{
		opts:    opts,
		deps:    deps,
		fetcher: NewFetcher(client, deps.Log(), opts.MaxChars),
	}
	p.commands = command.MustTable(
		command.Spec{
			Name:    "fetch",
			Pattern: command.MustCompile(`(?P<url>\S+)\s*$`),
			Help:    "Usage: !fetch <url>",
			Handler: p.fetch,
		},
		command.Spec{
			Name:    "browse",
			Pattern: command.MustCompile(`(?P<url>\S+)\s*$`),
			Help:    "Usage: !browse <url>",
			Handler: p.browse,
		},
	)
	return p, nil
}

func (p *Processor) Name() string { return "web" }

func (p *Processor) Commands() *command.Table { return p.commands }

func (p *Processor) Setup(context.Context) error {
	if p.opts.Browser != nil && !*p.opts.Browser {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		b := NewBrowser(p.deps.Log().With("component", "browser"), time.Duration(p.opts.IdleTimeoutSeconds)*time.Second, p.opts.MaxChars)
		p.browser = b
		p.closer = b.Close
	}
	return nil
}

func (p *Processor) Teardown(context.Context) error {
	p.mu.Lock()
	closer := p.closer
	p.browser, p.closer = nil, nil
	p.mu.Unlock()
	if closer != nil {
		return closer()
	}
	return nil
}

func (p *Processor) fetch(ctx context.Context, _ core.Message, args command.Captures) ([]core.Reply, error) {
	text, err := p.fetcher.Fetch(ctx, args.Get("url"))
	if err != nil {
		return nil, err
	}
	return core.Text(text), nil
}

// browse tries a plain fetch first and renders the page in the browser
// only when that fails or yields no text.
func (p *Processor) browse(ctx context.Context, _ core.Message, args command.Captures) ([]core.Reply, error) {
	target, err := normalizeURL(args.Get("url"))
	if err != nil {
		return nil, err
	}
	text, fetchErr := p.fetcher.Fetch(ctx, target)
	if fetchErr == nil {
		return core.Text(text), nil
	}

	p.mu.Lock()
	browser := p.browser
	p.mu.Unlock()
	if browser == nil {
		return nil, fetchErr
	}

	p.deps.Log().Debug("fetch failed, rendering in browser", "url", target, "error", fetchErr)
	text, err = browser.Render(ctx, target)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return core.Text("Nothing readable at " + target + "."), nil
	}
	return core.Text(text), nil
}
