// Package github answers questions about pull requests and issues.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/httpclient"
	"sphexbot/internal/processor"
)

const defaultBaseURL = "https://api.github.com"

type Options struct {
	Token       string `json:"auth_token"`
	BaseURL     string `json:"base_url"`
	DefaultUser string `json:"default_user"`
	DefaultRepo string `json:"default_repo"`
}

type Processor struct {
	processor.Base
	api      *API
	opts     Options
	commands *command.Table
}

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	opts := Options{BaseURL: defaultBaseURL}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	client := deps.HTTP
	if client == nil {
		client = httpclient.New(httpclient.Config{}, deps.Log())
	}
	client = client.WithBaseURL(opts.BaseURL)
	if opts.Token != "" {
		client = client.WithToken(opts.Token)
	}

	p := &Processor{api: NewAPI(client), opts: opts}
	p.commands = command.MustTable(
		command.Spec{
			Name:    "pulls",
			Pattern: command.MustCompile(`(?P<repospec>\S+)?\s*$`),
			Help:    "Usage: !pulls [user/repo]",
			Handler: p.pulls,
		},
		command.Spec{
			Name:    "pull",
			Pattern: command.MustCompile(`(?P<number>\d+)\s*(?P<repospec>\S+)?\s*$`),
			Help:    "Usage: !pull <number> [user/repo]",
			Handler: p.pull,
		},
		command.Spec{
			Name:    "issue",
			Pattern: command.MustCompile(`(?P<number>\d+)\s*(?P<repospec>\S+)?\s*$`),
			Help:    "Usage: !issue <number> [user/repo]",
			Handler: p.issue,
		},
	)
	return p, nil
}

func (p *Processor) Name() string { return "github" }

func (p *Processor) Commands() *command.Table { return p.commands }

// ParseRepoSpec resolves "repo", "user/repo" or "" against the defaults.
// Only the last two path segments count.
func (p *Processor) ParseRepoSpec(spec string) (user, repo string) {
	user, repo = p.opts.DefaultUser, p.opts.DefaultRepo
	parts := strings.Split(strings.Trim(strings.TrimSpace(spec), "/"), "/")
	switch {
	case len(parts) >= 2:
		return parts[len(parts)-2], parts[len(parts)-1]
	case parts[0] != "":
		return user, parts[0]
	}
	return user, repo
}

func (p *Processor) pulls(ctx context.Context, _ core.Message, args command.Captures) ([]core.Reply, error) {
	user, repo := p.ParseRepoSpec(args.Get("repospec"))
	pulls, err := p.api.ListPulls(ctx, user, repo)
	if httpclient.IsNotFound(err) {
		return core.Text(fmt.Sprintf("No such repository: %s/%s.", user, repo)), nil
	}
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(pulls)+1)
	lines = append(lines, fmt.Sprintf("Found %d pull requests for %s/%s.", len(pulls), user, repo))
	for _, pull := range pulls {
		lines = append(lines, pullSummary(pull))
	}
	return core.Text(lines...), nil
}

func (p *Processor) pull(ctx context.Context, _ core.Message, args command.Captures) ([]core.Reply, error) {
	user, repo := p.ParseRepoSpec(args.Get("repospec"))
	number, err := strconv.Atoi(args.Get("number"))
	if err != nil {
		return nil, core.NewValueError("invalid pull request number %q", args.Get("number"))
	}
	pull, err := p.api.GetPull(ctx, user, repo, number)
	if httpclient.IsNotFound(err) {
		return core.Text(fmt.Sprintf("No such pull request: %s/%s#%d.", user, repo, number)), nil
	}
	if err != nil {
		return nil, err
	}
	return core.Text(
		pullSummary(pull),
		fmt.Sprintf("created at: %s | changed files: %d | commits: %d | comments: %d",
			pull.CreatedAt, pull.ChangedFiles, pull.Commits, pull.Comments),
	), nil
}

func (p *Processor) issue(ctx context.Context, _ core.Message, args command.Captures) ([]core.Reply, error) {
	user, repo := p.ParseRepoSpec(args.Get("repospec"))
	number, err := strconv.Atoi(args.Get("number"))
	if err != nil {
		return nil, core.NewValueError("invalid issue number %q", args.Get("number"))
	}
	issue, err := p.api.GetIssue(ctx, user, repo, number)
	if httpclient.IsNotFound(err) {
		return core.Text(fmt.Sprintf("No such issue: %s/%s#%d.", user, repo, number)), nil
	}
	if err != nil {
		return nil, err
	}

	assigned := "nobody"
	if issue.Assignee != nil && issue.Assignee.Login != "" {
		assigned = issue.Assignee.Login
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.Name)
	}
	return core.Text(
		fmt.Sprintf("%d: %s | %s | %s", issue.Number, issue.Title, issue.State, issue.HTMLURL),
		fmt.Sprintf("created at: %s | reporter: %s | assigned: %s | comments: %d | labels: %s",
			issue.CreatedAt, issue.User.Login, assigned, issue.Comments, strings.Join(labels, ", ")),
	), nil
}

func pullSummary(pull PullRequest) string {
	merged := "unmerged"
	if pull.IsMerged() {
		merged = "merged"
	}
	return fmt.Sprintf("%d: %s | %s | %s", pull.Number, pull.Title, merged, pull.HTMLURL)
}
