package tools

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/registry"
)

// summaryLength is the longest article summary produced.
const summaryLength = 200

// searchWindow bounds search_news to recent articles.
const searchWindow = 30 * 24 * time.Hour

var newsCategories = []any{"business", "entertainment", "general", "health", "science", "sports", "technology"}

func newNewsClient(opts Options) *newsClient {
	return &newsClient{
		apiKey: opts.APIs.News.Token,
		api: &apiClient{
			service: "news",
			baseURL: orDefault(opts.APIs.News.BaseURL, config.DefaultNewsBaseURL),
			http:    opts.HTTPClient,
			headers: map[string]string{"X-Api-Key": opts.APIs.News.Token},
		},
		strip: bluemonday.StrictPolicy(),
		now:   opts.Now,
	}
}

type newsClient struct {
	apiKey string
	api    *apiClient
	strip  *bluemonday.Policy
	now    func() time.Time
}

func newsCapabilities(c *newsClient) []registry.Descriptor {
	pageSize := registry.Parameter{
		Name:        "page_size",
		Type:        registry.TypeInteger,
		Description: "Number of results to return (max 100)",
		Default:     20,
		Minimum:     registry.Bound(1),
		Maximum:     registry.Bound(100),
	}

	return []registry.Descriptor{
		{
			Name:        "get_top_headlines",
			Tool:        "news",
			Description: "Get top headlines from various sources",
			Action:      registry.ActionFunc(c.topHeadlines),
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "country", Type: registry.TypeString, Description: "ISO 3166-1 alpha-2 country code (e.g., 'us', 'gb', 'jp')", MinLength: 2, MaxLength: 2},
				{Name: "category", Type: registry.TypeString, Description: "News category", Enum: newsCategories},
				{Name: "source", Type: registry.TypeString, Description: "Specific news source ID"},
				{Name: "query", Type: registry.TypeString, Description: "Search query for headlines"},
				pageSize,
			}},
			Examples: []map[string]any{
				{"country": "us"},
				{"category": "technology", "country": "us"},
				{"query": "artificial intelligence", "page_size": 10},
			},
		},
		{
			Name:        "search_news",
			Tool:        "news",
			Description: "Search for news articles from the past month",
			Action:      registry.ActionFunc(c.searchNews),
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "query", Type: registry.TypeString, Description: "Search query or keywords", Required: true, MinLength: 1},
				{Name: "language", Type: registry.TypeString, Description: "ISO 639-1 language code (e.g., 'en', 'es', 'fr')", Default: "en", MinLength: 2, MaxLength: 2},
				{Name: "sort_by", Type: registry.TypeString, Description: "Sort order", Default: "publishedAt", Enum: []any{"relevancy", "popularity", "publishedAt"}},
				pageSize,
			}},
			Examples: []map[string]any{
				{"query": "climate change"},
				{"query": "stock market", "sort_by": "popularity"},
			},
		},
	}
}

type newsArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      *string `json:"author"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
	URL         string  `json:"url"`
	URLToImage  *string `json:"urlToImage"`
	PublishedAt string  `json:"publishedAt"`
}

type newsResponse struct {
	TotalResults int           `json:"totalResults"`
	Articles     []newsArticle `json:"articles"`
}

func (c *newsClient) articles(resp newsResponse) []any {
	out := make([]any, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		text := deref(a.Description)
		if text == "" {
			text = deref(a.Content)
		}
		out = append(out, map[string]any{
			"title":        deref(a.Title),
			"description":  deref(a.Description),
			"content":      deref(a.Content),
			"source":       a.Source.Name,
			"author":       deref(a.Author),
			"url":          a.URL,
			"image_url":    deref(a.URLToImage),
			"published_at": a.PublishedAt,
			"summary":      c.summarize(text),
		})
	}
	return out
}

var whitespace = regexp.MustCompile(`\s+`)

// summarize strips markup, collapses whitespace and cuts the text to
// summaryLength, backing off to a word boundary when one is close.
func (c *newsClient) summarize(content string) string {
	text := html.UnescapeString(c.strip.Sanitize(content))
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))

	runes := []rune(text)
	if len(runes) <= summaryLength {
		return text
	}
	cut := string(runes[:summaryLength])
	if i := strings.LastIndex(cut, " "); i > summaryLength*8/10 {
		cut = cut[:i]
	}
	return cut + "..."
}

func (c *newsClient) requireKey() error {
	if c.apiKey == "" {
		return registry.MarkPermanent(errMissingKey(config.EnvNewsAPIKey))
	}
	return nil
}

func (c *newsClient) topHeadlines(ctx context.Context, params map[string]any) (any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	pageSize, err := intParam(params, "page_size", 20)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for param, key := range map[string]string{"country": "country", "category": "category", "source": "sources", "query": "q"} {
		if v := stringParam(params, param); v != "" {
			q.Set(key, v)
		}
	}
	q.Set("pageSize", strconv.Itoa(min(pageSize, 100)))

	var resp newsResponse
	if err := c.api.getJSON(ctx, "/top-headlines", q, &resp); err != nil {
		return nil, err
	}

	echo := map[string]any{}
	for k := range q {
		echo[k] = q.Get(k)
	}
	return map[string]any{
		"articles":      c.articles(resp),
		"total_results": resp.TotalResults,
		"query":         echo,
	}, nil
}

func (c *newsClient) searchNews(ctx context.Context, params map[string]any) (any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	query, err := requiredString(params, "query")
	if err != nil {
		return nil, err
	}
	pageSize, err := intParam(params, "page_size", 20)
	if err != nil {
		return nil, err
	}

	end := c.now().UTC()
	from := end.Add(-searchWindow).Format(time.DateOnly)
	to := end.Format(time.DateOnly)

	q := url.Values{
		"q":        {query},
		"language": {orDefault(stringParam(params, "language"), "en")},
		"sortBy":   {orDefault(stringParam(params, "sort_by"), "publishedAt")},
		"pageSize": {strconv.Itoa(min(pageSize, 100))},
		"from":     {from},
		"to":       {to},
	}

	var resp newsResponse
	if err := c.api.getJSON(ctx, "/everything", q, &resp); err != nil {
		return nil, err
	}
	return map[string]any{
		"articles":      c.articles(resp),
		"total_results": resp.TotalResults,
		"search_query":  query,
		"date_range":    map[string]any{"from": from, "to": to},
	}, nil
}
