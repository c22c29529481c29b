package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/executor"
	"github.com/harrison/taskpilot/internal/registry"
)

var fixedNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

// newTestRegistry registers every tool against srv.
func newTestRegistry(t *testing.T, srv *httptest.Server, apis config.APIConfig) *registry.Registry {
	t.Helper()
	if srv != nil {
		apis.GitHub.BaseURL = srv.URL
		apis.Weather.BaseURL = srv.URL
		apis.News.BaseURL = srv.URL
	}
	reg := registry.New()
	require.NoError(t, RegisterAll(reg, Options{APIs: apis, Now: func() time.Time { return fixedNow }}))
	return reg
}

// invoke validates params like the dispatcher does and runs the action.
func invoke(t *testing.T, reg *registry.Registry, name string, params map[string]any) (any, error) {
	t.Helper()
	d, err := reg.Resolve(name)
	require.NoError(t, err)
	validated, err := d.Validate(params)
	if err != nil {
		return nil, err
	}
	return d.Action.Invoke(context.Background(), validated)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestRegisterAll(t *testing.T) {
	reg := newTestRegistry(t, nil, config.APIConfig{})

	assert.Equal(t, 11, reg.Len())
	tools := reg.Tools()
	assert.Equal(t, []string{"get_repository", "get_user_info", "list_repository_commits", "search_repositories"}, tools["github"])
	assert.Equal(t, []string{"get_current_weather", "get_weather_by_coordinates", "get_weather_forecast"}, tools["weather"])
	assert.Equal(t, []string{"get_top_headlines", "search_news"}, tools["news"])
	assert.Equal(t, []string{"extract_field", "format_text"}, tools["compute"])

	d, err := reg.Resolve("format_text")
	require.NoError(t, err)
	assert.Equal(t, registry.ClassCompute, d.TimeoutClass)
	d, err = reg.Resolve("get_repository")
	require.NoError(t, err)
	assert.Equal(t, registry.ClassNetwork, d.TimeoutClass)

	assert.Error(t, RegisterAll(reg, Options{}), "registering twice is a duplicate")
}

func TestSchemas(t *testing.T) {
	reg := newTestRegistry(t, nil, config.APIConfig{})

	tests := []struct {
		capability string
		params     map[string]any
	}{
		{"search_repositories", map[string]any{}},
		{"search_repositories", map[string]any{"query": "go", "per_page": 101}},
		{"search_repositories", map[string]any{"query": "go", "sort": "popularity"}},
		{"get_weather_by_coordinates", map[string]any{"lat": 91.0, "lon": 0.0}},
		{"get_current_weather", map[string]any{"city": ""}},
		{"get_top_headlines", map[string]any{"country": "usa"}},
		{"search_news", map[string]any{"query": "go", "page_size": 0}},
		{"extract_field", map[string]any{"items": "nope", "path": "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.capability, func(t *testing.T) {
			_, err := invoke(t, reg, tt.capability, tt.params)
			require.Error(t, err)
			assert.True(t, registry.IsInvalidParameters(err), "got %v", err)
		})
	}
}

func TestGitHub_SearchRepositories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "language:go", r.URL.Query().Get("q"))
		assert.Equal(t, "stars", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		assert.Equal(t, "token ghp_test", r.Header.Get("Authorization"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		writeJSON(w, map[string]any{
			"total_count": 1,
			"items": []any{map[string]any{
				"name": "go", "full_name": "golang/go", "owner": map[string]any{"login": "golang"},
				"description": "The Go programming language", "stargazers_count": 120000, "forks_count": 17000,
				"language": "Go", "updated_at": "2026-03-30T00:00:00Z", "created_at": "2014-08-19T00:00:00Z",
				"html_url": "https://github.com/golang/go", "topics": []string{"go", "language"},
			}},
		})
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv, config.APIConfig{GitHub: config.Endpoint{Token: "ghp_test"}})
	out, err := invoke(t, reg, "search_repositories", map[string]any{"query": "language:go"})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, 1, m["total_count"])
	assert.Equal(t, "language:go", m["query"])
	repos := m["repositories"].([]any)
	require.Len(t, repos, 1)
	repo := repos[0].(map[string]any)
	assert.Equal(t, "golang/go", repo["full_name"])
	assert.Equal(t, "golang", repo["owner"])
	assert.Equal(t, 120000, repo["stars"])
}

func TestGitHub_RepositoryAndUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/golang/go":
			writeJSON(w, map[string]any{
				"name": "go", "full_name": "golang/go", "owner": map[string]any{"login": "golang"},
				"license": map[string]any{"name": "BSD 3-Clause"}, "default_branch": "master", "open_issues_count": 9000,
			})
		case "/users/octocat":
			writeJSON(w, map[string]any{"login": "octocat", "name": "The Octocat", "public_repos": 8})
		case "/repos/golang/go/commits":
			assert.Equal(t, "2", r.URL.Query().Get("per_page"))
			writeJSON(w, []any{
				map[string]any{"sha": "abc", "commit": map[string]any{"message": "fix", "author": map[string]any{"name": "gopher", "date": "2026-03-01T00:00:00Z"}}},
				map[string]any{"sha": "def", "commit": map[string]any{"message": "feat", "author": map[string]any{"name": "gopher", "date": "2026-03-02T00:00:00Z"}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	reg := newTestRegistry(t, srv, config.APIConfig{})

	out, err := invoke(t, reg, "get_repository", map[string]any{"owner": "golang", "repo": "go"})
	require.NoError(t, err)
	repo := out.(map[string]any)
	assert.Equal(t, "BSD 3-Clause", repo["license"])
	assert.Equal(t, "master", repo["default_branch"])
	assert.Equal(t, 9000, repo["open_issues"])

	out, err = invoke(t, reg, "get_user_info", map[string]any{"username": "octocat"})
	require.NoError(t, err)
	user := out.(map[string]any)
	assert.Equal(t, "octocat", user["login"])
	assert.Equal(t, 8, user["public_repos"])

	out, err = invoke(t, reg, "list_repository_commits", map[string]any{"owner": "golang", "repo": "go", "per_page": 2})
	require.NoError(t, err)
	commits := out.(map[string]any)
	assert.Equal(t, 2, commits["count"])
	assert.Equal(t, "golang/go", commits["repository"])

	_, err = invoke(t, reg, "get_user_info", map[string]any{"username": "ghost"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, executor.Permanent, executor.Classify(err))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    executor.FailureClass
	}{
		{"rate limit exhausted", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, executor.Transient},
		{"forbidden", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "42"}, executor.Permanent},
		{"too many requests", http.StatusTooManyRequests, nil, executor.Transient},
		{"unauthorized", http.StatusUnauthorized, nil, executor.Permanent},
		{"bad gateway", http.StatusBadGateway, nil, executor.Transient},
		{"unavailable", http.StatusServiceUnavailable, nil, executor.Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				writeJSON(w, map[string]any{"message": "nope"})
			}))
			defer srv.Close()

			reg := newTestRegistry(t, srv, config.APIConfig{})
			_, err := invoke(t, reg, "get_user_info", map[string]any{"username": "octocat"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.want, executor.Classify(err))
		})
	}
}

func TestWeather_MissingKey(t *testing.T) {
	reg := newTestRegistry(t, nil, config.APIConfig{})
	_, err := invoke(t, reg, "get_current_weather", map[string]any{"city": "London"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvWeatherAPIKey)
	assert.Equal(t, executor.Permanent, executor.Classify(err))
}

func TestWeather_Current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "Paris,FR", r.URL.Query().Get("q"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "k3y", r.URL.Query().Get("appid"))
		writeJSON(w, map[string]any{
			"name":       "Paris",
			"coord":      map[string]any{"lat": 48.85, "lon": 2.35},
			"sys":        map[string]any{"country": "FR", "sunrise": 0, "sunset": 3600},
			"main":       map[string]any{"temp": 18.5, "feels_like": 17.9, "humidity": 60, "pressure": 1012},
			"visibility": 10000,
			"weather":    []any{map[string]any{"main": "Clouds", "description": "broken clouds", "icon": "04d"}},
			"wind":       map[string]any{"speed": 3.1, "deg": 200},
			"clouds":     map[string]any{"all": 75},
			"dt":         0,
		})
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv, config.APIConfig{Weather: config.Endpoint{Token: "k3y"}})
	out, err := invoke(t, reg, "get_current_weather", map[string]any{"city": "Paris", "country_code": "FR"})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "metric", m["units"])
	assert.Equal(t, 18.5, m["current"].(map[string]any)["temperature"])
	assert.Equal(t, 10.0, m["current"].(map[string]any)["visibility"])
	assert.Equal(t, "broken clouds", m["weather"].(map[string]any)["description"])
	assert.Equal(t, "1970-01-01T01:00:00Z", m["sunset"])
}

func TestWeather_Coordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40.7128", r.URL.Query().Get("lat"))
		assert.Equal(t, "-74.006", r.URL.Query().Get("lon"))
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		writeJSON(w, map[string]any{"name": "New York", "main": map[string]any{"temp": 60}})
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv, config.APIConfig{Weather: config.Endpoint{Token: "k3y"}})
	out, err := invoke(t, reg, "get_weather_by_coordinates", map[string]any{"lat": 40.7128, "lon": -74.006, "units": "imperial"})
	require.NoError(t, err)
	assert.Equal(t, "New York", out.(map[string]any)["location"].(map[string]any)["name"])
}

func TestWeather_Forecast(t *testing.T) {
	day := int64(24 * 60 * 60)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		var list []any
		for d := int64(0); d < 7; d++ {
			for _, h := range []int64{0, 3, 6} {
				desc := "clear sky"
				if h == 6 && d == 0 {
					desc = "light rain"
				}
				list = append(list, map[string]any{
					"dt":      d*day + h*3600,
					"main":    map[string]any{"temp": float64(10 + h), "humidity": 50},
					"weather": []any{map[string]any{"description": desc}},
					"wind":    map[string]any{"speed": 2},
				})
			}
		}
		writeJSON(w, map[string]any{"list": list, "city": map[string]any{"name": "Oslo", "country": "NO"}})
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv, config.APIConfig{Weather: config.Endpoint{Token: "k3y"}})
	out, err := invoke(t, reg, "get_weather_forecast", map[string]any{"city": "Oslo"})
	require.NoError(t, err)

	forecasts := out.(map[string]any)["forecasts"].([]any)
	require.Len(t, forecasts, forecastDays)
	first := forecasts[0].(map[string]any)
	assert.Equal(t, "1970-01-01", first["date"])
	assert.Equal(t, "clear sky", first["condition"])
	temp := first["temperature"].(map[string]any)
	assert.Equal(t, 10.0, temp["min"])
	assert.Equal(t, 16.0, temp["max"])
	assert.Equal(t, 13.0, temp["avg"])
	assert.Equal(t, 50.0, first["humidity"])
}

func TestNews_SearchAndSummaries(t *testing.T) {
	long := "<p>Go 1.26 ships <b>faster</b> builds.</p>\n\n" + repeatWords("word", 60)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/everything", r.URL.Path)
		assert.Equal(t, "n3ws", r.Header.Get("X-Api-Key"))
		q := r.URL.Query()
		assert.Equal(t, "golang", q.Get("q"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "2026-03-01", q.Get("from"))
		assert.Equal(t, "2026-03-31", q.Get("to"))
		writeJSON(w, map[string]any{
			"totalResults": 2,
			"articles": []any{
				map[string]any{"title": "Short", "description": "Tom &amp; Jerry <i>return</i>", "source": map[string]any{"name": "Daily"}},
				map[string]any{"title": "Long", "description": nil, "content": long},
			},
		})
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv, config.APIConfig{News: config.Endpoint{Token: "n3ws"}})
	out, err := invoke(t, reg, "search_news", map[string]any{"query": "golang"})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, 2, m["total_results"])
	assert.Equal(t, map[string]any{"from": "2026-03-01", "to": "2026-03-31"}, m["date_range"])
	articles := m["articles"].([]any)
	assert.Equal(t, "Tom & Jerry return", articles[0].(map[string]any)["summary"])
	assert.Equal(t, "Daily", articles[0].(map[string]any)["source"])

	summary := articles[1].(map[string]any)["summary"].(string)
	assert.True(t, len(summary) <= summaryLength+3)
	assert.Contains(t, summary, "Go 1.26 ships faster builds.")
	assert.NotContains(t, summary, "<")
	assert.Regexp(t, `word\.\.\.$`, summary)
}

func repeatWords(w string, n int) string {
	out := w
	for i := 1; i < n; i++ {
		out += " " + w
	}
	return out
}

func TestNews_TopHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/top-headlines", r.URL.Path)
		assert.Equal(t, "us", r.URL.Query().Get("country"))
		assert.Equal(t, "technology", r.URL.Query().Get("category"))
		assert.Equal(t, "20", r.URL.Query().Get("pageSize"))
		assert.Empty(t, r.URL.Query().Get("sources"))
		writeJSON(w, map[string]any{"totalResults": 0, "articles": []any{}})
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv, config.APIConfig{News: config.Endpoint{Token: "n3ws"}})
	out, err := invoke(t, reg, "get_top_headlines", map[string]any{"country": "us", "category": "technology"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Empty(t, m["articles"])
	assert.Equal(t, map[string]any{"country": "us", "category": "technology", "pageSize": "20"}, m["query"])

	noKey := newTestRegistry(t, srv, config.APIConfig{})
	_, err = invoke(t, noKey, "get_top_headlines", map[string]any{})
	assert.ErrorContains(t, err, config.EnvNewsAPIKey)
}

func TestExtractField(t *testing.T) {
	reg := newTestRegistry(t, nil, config.APIConfig{})
	items := []any{
		map[string]any{"owner": map[string]any{"login": "golang"}, "tags": []any{"a", "b"}},
		map[string]any{"owner": map[string]any{"login": "kubernetes"}, "tags": []any{"c"}},
		map[string]any{"name": "orphan"},
	}

	_, err := invoke(t, reg, "extract_field", map[string]any{"items": items, "path": "owner.login"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `item 2: no field "owner"`)
	assert.Equal(t, executor.Permanent, executor.Classify(err))

	out, err := invoke(t, reg, "extract_field", map[string]any{"items": items, "path": "owner.login", "skip_missing": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"values": []any{"golang", "kubernetes"}, "count": 2}, out)

	out, err = invoke(t, reg, "extract_field", map[string]any{"items": items[:2], "path": "tags.0"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "c"}, out.(map[string]any)["values"])

	_, err = invoke(t, reg, "extract_field", map[string]any{"items": items[:1], "path": "tags.5"})
	assert.ErrorContains(t, err, "invalid list index")
}

func TestFormatText(t *testing.T) {
	reg := newTestRegistry(t, nil, config.APIConfig{})

	out, err := invoke(t, reg, "format_text", map[string]any{
		"template": "{{.repo}} has {{.stars}} stars",
		"values":   map[string]any{"repo": "golang/go", "stars": 120000},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "golang/go has 120000 stars"}, out)

	out, err = invoke(t, reg, "format_text", map[string]any{"template": "static"})
	require.NoError(t, err)
	assert.Equal(t, "static", out.(map[string]any)["text"])

	_, err = invoke(t, reg, "format_text", map[string]any{"template": "{{.missing}}", "values": map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, executor.Permanent, executor.Classify(err))

	_, err = invoke(t, reg, "format_text", map[string]any{"template": "{{"})
	require.Error(t, err)
	assert.True(t, registry.IsInvalidParameters(err))
}
