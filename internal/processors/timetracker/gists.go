package timetracker

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sphexbot/internal/httpclient"
	"sphexbot/internal/store"
)

const publishedKey = "published"

type gistFile struct {
	Content string `json:"content"`
}

type gistRequest struct {
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
}

type Gist struct {
	ID      string    `json:"id"`
	HTMLURL string    `json:"html_url"`
	Expires time.Time `json:"-"`
}

func gistKey(id string) string { return "gist:" + id }

type gists struct {
	client *httpclient.Client
	store  store.Store
}

func (g *gists) create(ctx context.Context, description string, files map[string]string) (Gist, error) {
	req := gistRequest{Description: description, Files: make(map[string]gistFile, len(files))}
	for name, content := range files {
		req.Files[name] = gistFile{Content: content}
	}
	var gist Gist
	if err := g.client.Do(ctx, http.MethodPost, "gists", req, &gist); err != nil {
		return Gist{}, err
	}
	if gist.ID == "" {
		return Gist{}, errors.New("gist service returned no id")
	}
	return gist, nil
}

func (g *gists) remember(ctx context.Context, gist Gist, created, expires time.Time) error {
	if err := g.store.HashSet(ctx, gistKey(gist.ID), map[string]string{
		"html_url": gist.HTMLURL,
		"created":  created.Format(time.RFC3339),
		"expires":  strconv.FormatInt(expires.Unix(), 10),
	}); err != nil {
		return err
	}
	return g.store.SortedAdd(ctx, publishedKey, gist.ID, float64(expires.Unix()))
}

// delete removes the gist remotely and forgets it. A gist that is already
// gone counts as deleted.
func (g *gists) delete(ctx context.Context, id string) error {
	err := g.client.Do(ctx, http.MethodDelete, "gists/"+url.PathEscape(id), nil, nil)
	if err != nil && !httpclient.IsNotFound(err) {
		return err
	}
	if err := g.store.SortedRemove(ctx, publishedKey, id); err != nil {
		return err
	}
	return g.store.Delete(ctx, gistKey(id))
}

func (g *gists) active(ctx context.Context) ([]Gist, error) {
	ids, err := g.store.SortedRangeByScore(ctx, publishedKey, 0, float64(1<<53))
	if err != nil {
		return nil, err
	}
	out := make([]Gist, 0, len(ids))
	for _, id := range ids {
		fields, err := g.store.HashGetAll(ctx, gistKey(id))
		if err != nil {
			return nil, err
		}
		gist := Gist{ID: id, HTMLURL: fields["html_url"]}
		if unix, err := strconv.ParseInt(fields["expires"], 10, 64); err == nil {
			gist.Expires = time.Unix(unix, 0)
		}
		out = append(out, gist)
	}
	return out, nil
}

func renderCSV(records []Record) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "time", "project", "notes"}); err != nil {
		return "", err
	}
	for _, r := range records {
		if err := w.Write([]string{r.Date, r.Time, r.Project, r.Notes}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("render csv: %w", err)
	}
	return buf.String(), nil
}
