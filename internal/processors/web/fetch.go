package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"sphexbot/internal/core"
	"sphexbot/internal/httpclient"
)

var (
	reScript     = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTag        = regexp.MustCompile(`(?is)<[^>]+>`)
	reMultiSpace = regexp.MustCompile(`[^\S\n]+`)
	reMultiLine  = regexp.MustCompile(`\n{3,}`)
)

// Fetcher pulls a page over plain HTTP and reduces it to text.
type Fetcher struct {
	client   *httpclient.Client
	logger   *slog.Logger
	maxChars int
}

func NewFetcher(client *httpclient.Client, logger *slog.Logger, maxChars int) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Fetcher{client: client, logger: logger, maxChars: maxChars}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Get(ctx, target)
	if err != nil {
		return "", err
	}

	text := string(resp.Body)
	if strings.Contains(resp.ContentType(), "text/html") || looksLikeHTML(text) {
		text = stripHTML(text)
	}
	text = truncate(strings.TrimSpace(text), f.maxChars)
	if text == "" {
		return "", fmt.Errorf("fetch %s: empty body text", target)
	}

	f.logger.Debug("web fetch completed", "url", target, "chars", len(text))
	return text, nil
}

// normalizeURL defaults to https and accepts only http(s) URLs with a host.
func normalizeURL(rawURL string) (string, error) {
	value := strings.TrimSpace(rawURL)
	if value == "" {
		return "", core.NewValueError("url is required")
	}
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", core.NewValueError("invalid url %q", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", core.NewValueError("only http/https urls are supported")
	}
	if parsed.Host == "" {
		return "", core.NewValueError("url host is required")
	}
	return parsed.String(), nil
}

func looksLikeHTML(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	return strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html")
}

func stripHTML(htmlContent string) string {
	result := reScript.ReplaceAllString(htmlContent, "")
	result = reStyle.ReplaceAllString(result, "")
	result = reTag.ReplaceAllString(result, "\n")
	result = reMultiSpace.ReplaceAllString(result, " ")
	result = reMultiLine.ReplaceAllString(result, "\n\n")

	lines := strings.Split(result, "\n")
	clean := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

// truncate cuts text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut]) + "..."
}
