package web

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"sphexbot/internal/httpclient"
)

const (
	defaultIdleTimeout = 5 * time.Minute
	renderTimeout      = 45 * time.Second
)

var errBrowserClosed = errors.New("browser closed")

// launchFunc starts a browser and returns the context commands run in.
// Cancelling it stops the browser.
type launchFunc func() (context.Context, context.CancelFunc, error)

// pageTextFunc returns the visible text of target in a running browser.
type pageTextFunc func(ctx context.Context, target string) (string, error)

// Browser renders pages in a headless Chrome. Chrome is launched on the
// first Render and stopped once no page was rendered for idleTimeout.
type Browser struct {
	logger      *slog.Logger
	idleTimeout time.Duration
	maxChars    int
	now         func() time.Time
	launch      launchFunc
	pageText    pageTextFunc

	mu       sync.Mutex
	session  context.Context
	stop     context.CancelFunc
	lastUsed time.Time
	busy     int
	reaper   *time.Timer
	closed   bool
}

func NewBrowser(logger *slog.Logger, idleTimeout time.Duration, maxChars int) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Browser{
		logger:      logger,
		idleTimeout: idleTimeout,
		maxChars:    maxChars,
		now:         time.Now,
		launch:      launchChrome,
		pageText:    chromePageText,
	}
}

func launchChrome() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	stop := func() {
		tabCancel()
		allocCancel()
	}
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		return nil, nil, err
	}
	return tabCtx, stop, nil
}

func chromePageText(ctx context.Context, target string) (string, error) {
	var body string
	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &body),
	)
	return body, err
}

// Render loads rawURL and returns the visible text of its body, cut to
// maxChars. Failures to start Chrome or load the page are NetworkErrors.
func (b *Browser) Render(ctx context.Context, rawURL string) (string, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	session, err := b.checkout()
	if err != nil {
		return "", &httpclient.NetworkError{Method: "BROWSE", URL: target, Err: err}
	}
	defer b.checkin()

	renderCtx, cancel := context.WithTimeout(session, renderTimeout)
	defer cancel()
	// The session outlives the request; stop loading if the caller gives up.
	defer context.AfterFunc(ctx, cancel)()

	body, err := b.pageText(renderCtx, target)
	if err != nil {
		return "", &httpclient.NetworkError{Method: "BROWSE", URL: target, Err: err}
	}
	text := truncate(tidyText(body), b.maxChars)
	b.logger.Debug("page rendered", "url", target, "chars", len(text))
	return text, nil
}

func tidyText(text string) string {
	text = reMultiSpace.ReplaceAllString(text, " ")
	text = reMultiLine.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// checkout returns the running session, launching Chrome if needed, and
// marks it busy so it is not reaped mid-render.
func (b *Browser) checkout() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errBrowserClosed
	}
	if b.session == nil {
		session, stop, err := b.launch()
		if err != nil {
			return nil, err
		}
		b.session, b.stop = session, stop
		b.logger.Info("browser started", "idle_timeout", b.idleTimeout.String())
	}
	b.busy++
	b.lastUsed = b.now()
	return b.session, nil
}

func (b *Browser) checkin() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.busy--
	b.lastUsed = b.now()
	if b.closed || b.session == nil {
		return
	}
	if b.reaper == nil {
		b.reaper = time.AfterFunc(b.idleTimeout, b.reap)
	} else {
		b.reaper.Reset(b.idleTimeout)
	}
}

func (b *Browser) reap() {
	if b.stopIfIdle() {
		return
	}
	b.mu.Lock()
	if b.session != nil && !b.closed && b.busy == 0 {
		b.reaper.Reset(b.idleTimeout - b.now().Sub(b.lastUsed))
	}
	b.mu.Unlock()
}

// stopIfIdle stops Chrome when nothing is rendering and the last render
// ended at least idleTimeout ago.
func (b *Browser) stopIfIdle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || b.busy > 0 || b.now().Sub(b.lastUsed) < b.idleTimeout {
		return false
	}
	b.stopLocked("idle")
	return true
}

// Running reports whether Chrome is up.
func (b *Browser) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session != nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.reaper != nil {
		b.reaper.Stop()
	}
	b.stopLocked("shutdown")
	return nil
}

func (b *Browser) stopLocked(reason string) {
	if b.session == nil {
		return
	}
	b.stop()
	b.session, b.stop = nil, nil
	b.logger.Info("browser stopped", "reason", reason)
}
