package github

import (
	"context"
	"fmt"
	"net/http"

	"sphexbot/internal/httpclient"
)

type User struct {
	Login string `json:"login"`
}

type Label struct {
	Name string `json:"name"`
}

type PullRequest struct {
	Number       int     `json:"number"`
	Title        string  `json:"title"`
	State        string  `json:"state"`
	HTMLURL      string  `json:"html_url"`
	MergedAt     *string `json:"merged_at"`
	Merged       bool    `json:"merged"`
	CreatedAt    string  `json:"created_at"`
	ChangedFiles int     `json:"changed_files"`
	Commits      int     `json:"commits"`
	Comments     int     `json:"comments"`
}

func (p PullRequest) IsMerged() bool {
	return p.Merged || (p.MergedAt != nil && *p.MergedAt != "")
}

type Issue struct {
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	State     string  `json:"state"`
	HTMLURL   string  `json:"html_url"`
	CreatedAt string  `json:"created_at"`
	User      User    `json:"user"`
	Assignee  *User   `json:"assignee"`
	Comments  int     `json:"comments"`
	Labels    []Label `json:"labels"`
}

// API is the slice of the GitHub REST API the processor reads.
type API struct {
	http *httpclient.Client
}

func NewAPI(client *httpclient.Client) *API {
	return &API{http: client}
}

func (a *API) ListPulls(ctx context.Context, user, repo string) ([]PullRequest, error) {
	var pulls []PullRequest
	if err := a.http.Do(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s/pulls", user, repo), nil, &pulls); err != nil {
		return nil, err
	}
	return pulls, nil
}

func (a *API) GetPull(ctx context.Context, user, repo string, number int) (PullRequest, error) {
	var pull PullRequest
	err := a.http.Do(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s/pulls/%d", user, repo, number), nil, &pull)
	return pull, err
}

func (a *API) GetIssue(ctx context.Context, user, repo string, number int) (Issue, error) {
	var issue Issue
	err := a.http.Do(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s/issues/%d", user, repo, number), nil, &issue)
	return issue, err
}
