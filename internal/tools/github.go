package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/registry"
)

func newGitHubClient(opts Options) *apiClient {
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if opts.APIs.GitHub.Token != "" {
		headers["Authorization"] = "token " + opts.APIs.GitHub.Token
	}
	return &apiClient{
		service: "github",
		baseURL: orDefault(opts.APIs.GitHub.BaseURL, config.DefaultGitHubBaseURL),
		http:    opts.HTTPClient,
		headers: headers,
	}
}

var perPageParam = registry.Parameter{
	Name:        "per_page",
	Type:        registry.TypeInteger,
	Description: "Number of results to return (max 100)",
	Default:     10,
	Minimum:     registry.Bound(1),
	Maximum:     registry.Bound(100),
}

func githubCapabilities(c *apiClient) []registry.Descriptor {
	owner := registry.Parameter{Name: "owner", Type: registry.TypeString, Description: "Repository owner (username or organization)", Required: true, MinLength: 1}
	repo := registry.Parameter{Name: "repo", Type: registry.TypeString, Description: "Repository name", Required: true, MinLength: 1}

	return []registry.Descriptor{
		{
			Name:        "search_repositories",
			Tool:        "github",
			Description: "Search GitHub repositories",
			Action:      registry.ActionFunc(c.searchRepositories),
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "query", Type: registry.TypeString, Description: "Search query (e.g., 'language:python stars:>100')", Required: true, MinLength: 1},
				{Name: "sort", Type: registry.TypeString, Description: "Sort field", Default: "stars", Enum: []any{"stars", "forks", "updated", "created"}},
				{Name: "order", Type: registry.TypeString, Description: "Sort order", Default: "desc", Enum: []any{"desc", "asc"}},
				perPageParam,
			}},
			Examples: []map[string]any{
				{"query": "language:python machine learning"},
				{"query": "stars:>1000", "sort": "stars"},
			},
		},
		{
			Name:        "get_repository",
			Tool:        "github",
			Description: "Get detailed information about a specific repository",
			Action:      registry.ActionFunc(c.getRepository),
			Schema:      registry.Schema{Parameters: []registry.Parameter{owner, repo}},
			Examples:    []map[string]any{{"owner": "facebook", "repo": "react"}},
		},
		{
			Name:        "get_user_info",
			Tool:        "github",
			Description: "Get information about a GitHub user",
			Action:      registry.ActionFunc(c.getUserInfo),
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "username", Type: registry.TypeString, Description: "GitHub username", Required: true, MinLength: 1},
			}},
			Examples: []map[string]any{{"username": "octocat"}},
		},
		{
			Name:        "list_repository_commits",
			Tool:        "github",
			Description: "List commits in a repository",
			Action:      registry.ActionFunc(c.listRepositoryCommits),
			Schema:      registry.Schema{Parameters: []registry.Parameter{owner, repo, perPageParam}},
			Examples:    []map[string]any{{"owner": "python", "repo": "cpython", "per_page": 5}},
		},
	}
}

type ghOwner struct {
	Login string `json:"login"`
}

type ghRepository struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Owner           ghOwner  `json:"owner"`
	Description     *string  `json:"description"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	WatchersCount   int      `json:"watchers_count"`
	Language        *string  `json:"language"`
	Size            int      `json:"size"`
	UpdatedAt       string   `json:"updated_at"`
	CreatedAt       string   `json:"created_at"`
	PushedAt        string   `json:"pushed_at"`
	HTMLURL         string   `json:"html_url"`
	CloneURL        string   `json:"clone_url"`
	Topics          []string `json:"topics"`
	License         *struct {
		Name string `json:"name"`
	} `json:"license"`
	DefaultBranch   string `json:"default_branch"`
	OpenIssuesCount int    `json:"open_issues_count"`
	HasIssues       bool   `json:"has_issues"`
	HasWiki         bool   `json:"has_wiki"`
	HasPages        bool   `json:"has_pages"`
}

func (r ghRepository) summary() map[string]any {
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	return map[string]any{
		"name":        r.Name,
		"full_name":   r.FullName,
		"owner":       r.Owner.Login,
		"description": deref(r.Description),
		"stars":       r.StargazersCount,
		"forks":       r.ForksCount,
		"language":    r.Language,
		"updated_at":  r.UpdatedAt,
		"created_at":  r.CreatedAt,
		"url":         r.HTMLURL,
		"topics":      topics,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (c *apiClient) searchRepositories(ctx context.Context, params map[string]any) (any, error) {
	query, err := requiredString(params, "query")
	if err != nil {
		return nil, err
	}
	perPage, err := intParam(params, "per_page", 10)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", orDefault(stringParam(params, "sort"), "stars"))
	q.Set("order", orDefault(stringParam(params, "order"), "desc"))
	q.Set("per_page", strconv.Itoa(min(perPage, 100)))

	var resp struct {
		TotalCount int            `json:"total_count"`
		Items      []ghRepository `json:"items"`
	}
	if err := c.getJSON(ctx, "/search/repositories", q, &resp); err != nil {
		return nil, err
	}

	repos := make([]any, 0, len(resp.Items))
	for _, item := range resp.Items {
		repos = append(repos, item.summary())
	}
	return map[string]any{
		"repositories": repos,
		"total_count":  resp.TotalCount,
		"query":        query,
	}, nil
}

func (c *apiClient) getRepository(ctx context.Context, params map[string]any) (any, error) {
	owner, err := requiredString(params, "owner")
	if err != nil {
		return nil, err
	}
	repo, err := requiredString(params, "repo")
	if err != nil {
		return nil, err
	}

	var r ghRepository
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo)), nil, &r); err != nil {
		return nil, err
	}

	out := r.summary()
	var license any
	if r.License != nil {
		license = r.License.Name
	}
	out["watchers"] = r.WatchersCount
	out["size"] = r.Size
	out["pushed_at"] = r.PushedAt
	out["clone_url"] = r.CloneURL
	out["license"] = license
	out["default_branch"] = r.DefaultBranch
	out["open_issues"] = r.OpenIssuesCount
	out["has_issues"] = r.HasIssues
	out["has_wiki"] = r.HasWiki
	out["has_pages"] = r.HasPages
	return out, nil
}

func (c *apiClient) getUserInfo(ctx context.Context, params map[string]any) (any, error) {
	username, err := requiredString(params, "username")
	if err != nil {
		return nil, err
	}

	var u struct {
		Login       string  `json:"login"`
		Name        *string `json:"name"`
		Bio         *string `json:"bio"`
		Company     *string `json:"company"`
		Location    *string `json:"location"`
		Email       *string `json:"email"`
		Blog        *string `json:"blog"`
		AvatarURL   string  `json:"avatar_url"`
		Followers   int     `json:"followers"`
		Following   int     `json:"following"`
		PublicRepos int     `json:"public_repos"`
		CreatedAt   string  `json:"created_at"`
		UpdatedAt   string  `json:"updated_at"`
		HTMLURL     string  `json:"html_url"`
	}
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(username), nil, &u); err != nil {
		return nil, err
	}

	return map[string]any{
		"login":        u.Login,
		"name":         u.Name,
		"bio":          u.Bio,
		"company":      u.Company,
		"location":     u.Location,
		"email":        u.Email,
		"blog":         u.Blog,
		"avatar_url":   u.AvatarURL,
		"followers":    u.Followers,
		"following":    u.Following,
		"public_repos": u.PublicRepos,
		"created_at":   u.CreatedAt,
		"updated_at":   u.UpdatedAt,
		"url":          u.HTMLURL,
	}, nil
}

func (c *apiClient) listRepositoryCommits(ctx context.Context, params map[string]any) (any, error) {
	owner, err := requiredString(params, "owner")
	if err != nil {
		return nil, err
	}
	repo, err := requiredString(params, "repo")
	if err != nil {
		return nil, err
	}
	perPage, err := intParam(params, "per_page", 10)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Name string `json:"name"`
				Date string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
		HTMLURL string `json:"html_url"`
	}
	q := url.Values{"per_page": {strconv.Itoa(min(perPage, 100))}}
	path := fmt.Sprintf("/repos/%s/%s/commits", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	commits := make([]any, 0, len(resp))
	for _, cm := range resp {
		commits = append(commits, map[string]any{
			"sha":     cm.SHA,
			"message": cm.Commit.Message,
			"author":  cm.Commit.Author.Name,
			"date":    cm.Commit.Author.Date,
			"url":     cm.HTMLURL,
		})
	}
	return map[string]any{
		"commits":    commits,
		"repository": owner + "/" + repo,
		"count":      len(commits),
	}, nil
}
