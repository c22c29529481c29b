package tools

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/registry"
)

// forecastDays is the number of daily summaries get_weather_forecast returns.
const forecastDays = 5

func newWeatherClient(opts Options) *weatherClient {
	return &weatherClient{
		apiKey: opts.APIs.Weather.Token,
		api: &apiClient{
			service: "weather",
			baseURL: orDefault(opts.APIs.Weather.BaseURL, config.DefaultWeatherBaseURL),
			http:    opts.HTTPClient,
			query:   url.Values{"appid": {opts.APIs.Weather.Token}},
		},
	}
}

type weatherClient struct {
	apiKey string
	api    *apiClient
}

func unitsParam() registry.Parameter {
	return registry.Parameter{
		Name:        "units",
		Type:        registry.TypeString,
		Description: "Temperature units",
		Default:     "metric",
		Enum:        []any{"metric", "imperial", "kelvin"},
	}
}

func weatherCapabilities(c *weatherClient) []registry.Descriptor {
	city := registry.Parameter{Name: "city", Type: registry.TypeString, Description: "City name (e.g., 'London', 'New York', 'Tokyo')", Required: true, MinLength: 1}
	country := registry.Parameter{Name: "country_code", Type: registry.TypeString, Description: "ISO 3166 country code (e.g., 'US', 'GB', 'JP')"}

	return []registry.Descriptor{
		{
			Name:        "get_current_weather",
			Tool:        "weather",
			Description: "Get current weather for a city",
			Action:      registry.ActionFunc(c.currentWeather),
			Schema:      registry.Schema{Parameters: []registry.Parameter{city, country, unitsParam()}},
			Examples: []map[string]any{
				{"city": "London"},
				{"city": "New York", "country_code": "US"},
				{"city": "Tokyo", "units": "imperial"},
			},
		},
		{
			Name:        "get_weather_forecast",
			Tool:        "weather",
			Description: "Get 5-day weather forecast for a city",
			Action:      registry.ActionFunc(c.forecast),
			Schema:      registry.Schema{Parameters: []registry.Parameter{city, country, unitsParam()}},
			Examples:    []map[string]any{{"city": "Paris", "country_code": "FR"}},
		},
		{
			Name:        "get_weather_by_coordinates",
			Tool:        "weather",
			Description: "Get weather by geographic coordinates",
			Action:      registry.ActionFunc(c.weatherByCoordinates),
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "lat", Type: registry.TypeNumber, Description: "Latitude", Required: true, Minimum: registry.Bound(-90), Maximum: registry.Bound(90)},
				{Name: "lon", Type: registry.TypeNumber, Description: "Longitude", Required: true, Minimum: registry.Bound(-180), Maximum: registry.Bound(180)},
				unitsParam(),
			}},
			Examples: []map[string]any{{"lat": 40.7128, "lon": -74.0060}},
		},
	}
}

func (c *weatherClient) requireKey() error {
	if c.apiKey == "" {
		return registry.MarkPermanent(errMissingKey(config.EnvWeatherAPIKey))
	}
	return nil
}

// owmCurrent is the subset of the OpenWeatherMap current-weather response we use.
type owmCurrent struct {
	Name  string `json:"name"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Visibility float64      `json:"visibility"`
	Weather    []owmWeather `json:"weather"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}

type owmWeather struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func unixTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func (w owmCurrent) report(units string) map[string]any {
	var cond owmWeather
	if len(w.Weather) > 0 {
		cond = w.Weather[0]
	}
	return map[string]any{
		"location": map[string]any{
			"name":        w.Name,
			"country":     w.Sys.Country,
			"coordinates": map[string]any{"lat": w.Coord.Lat, "lon": w.Coord.Lon},
		},
		"current": map[string]any{
			"temperature": w.Main.Temp,
			"feels_like":  w.Main.FeelsLike,
			"humidity":    w.Main.Humidity,
			"pressure":    w.Main.Pressure,
			"visibility":  w.Visibility / 1000,
		},
		"weather": map[string]any{
			"main":        cond.Main,
			"description": cond.Description,
			"icon":        cond.Icon,
		},
		"wind": map[string]any{
			"speed":     w.Wind.Speed,
			"direction": w.Wind.Deg,
		},
		"clouds":    w.Clouds.All,
		"sunrise":   unixTime(w.Sys.Sunrise),
		"sunset":    unixTime(w.Sys.Sunset),
		"timestamp": unixTime(w.Dt),
		"units":     units,
	}
}

// location builds the "q" query value: city, or city,country.
func location(params map[string]any) (string, error) {
	city, err := requiredString(params, "city")
	if err != nil {
		return "", err
	}
	if cc := stringParam(params, "country_code"); cc != "" {
		city += "," + cc
	}
	return city, nil
}

func (c *weatherClient) currentWeather(ctx context.Context, params map[string]any) (any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	loc, err := location(params)
	if err != nil {
		return nil, err
	}
	units := orDefault(stringParam(params, "units"), "metric")

	var w owmCurrent
	if err := c.api.getJSON(ctx, "/weather", url.Values{"q": {loc}, "units": {units}}, &w); err != nil {
		return nil, err
	}
	return w.report(units), nil
}

func (c *weatherClient) weatherByCoordinates(ctx context.Context, params map[string]any) (any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	lat, ok := numberParam(params, "lat")
	if !ok {
		return nil, invalidParam("lat", "must be a number")
	}
	lon, ok := numberParam(params, "lon")
	if !ok {
		return nil, invalidParam("lon", "must be a number")
	}
	units := orDefault(stringParam(params, "units"), "metric")

	q := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"units": {units},
	}
	var w owmCurrent
	if err := c.api.getJSON(ctx, "/weather", q, &w); err != nil {
		return nil, err
	}
	return w.report(units), nil
}

func (c *weatherClient) forecast(ctx context.Context, params map[string]any) (any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	loc, err := location(params)
	if err != nil {
		return nil, err
	}
	units := orDefault(stringParam(params, "units"), "metric")

	var resp struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     float64 `json:"temp"`
				Humidity float64 `json:"humidity"`
			} `json:"main"`
			Weather []owmWeather `json:"weather"`
			Wind    struct {
				Speed float64 `json:"speed"`
			} `json:"wind"`
		} `json:"list"`
		City struct {
			Name    string `json:"name"`
			Country string `json:"country"`
		} `json:"city"`
	}
	if err := c.api.getJSON(ctx, "/forecast", url.Values{"q": {loc}, "units": {units}}, &resp); err != nil {
		return nil, err
	}

	var days []*forecastDay
	byDate := map[string]*forecastDay{}
	for _, item := range resp.List {
		date := time.Unix(item.Dt, 0).UTC().Format(time.DateOnly)
		day, ok := byDate[date]
		if !ok {
			day = &forecastDay{date: date}
			byDate[date] = day
			days = append(days, day)
		}
		cond := ""
		if len(item.Weather) > 0 {
			cond = item.Weather[0].Description
		}
		day.add(item.Main.Temp, item.Main.Humidity, item.Wind.Speed, cond)
	}

	forecasts := make([]any, 0, forecastDays)
	for i, day := range days {
		if i == forecastDays {
			break
		}
		forecasts = append(forecasts, day.summary())
	}

	return map[string]any{
		"location":  map[string]any{"name": resp.City.Name, "country": resp.City.Country},
		"forecasts": forecasts,
		"units":     units,
	}, nil
}

// forecastDay accumulates the three-hourly samples of one calendar day.
type forecastDay struct {
	date       string
	temps      []float64
	humidity   float64
	wind       float64
	conditions []string
}

func (d *forecastDay) add(temp, humidity, wind float64, condition string) {
	d.temps = append(d.temps, temp)
	d.humidity += humidity
	d.wind += wind
	d.conditions = append(d.conditions, condition)
}

func (d *forecastDay) summary() map[string]any {
	n := float64(len(d.temps))
	lo, hi, sum := d.temps[0], d.temps[0], 0.0
	for _, t := range d.temps {
		lo = min(lo, t)
		hi = max(hi, t)
		sum += t
	}
	return map[string]any{
		"date":        d.date,
		"temperature": map[string]any{"min": lo, "max": hi, "avg": sum / n},
		"condition":   mostCommon(d.conditions),
		"humidity":    d.humidity / n,
		"wind_speed":  d.wind / n,
	}
}

// mostCommon returns the most frequent value; on a tie, the value that reached
// the count first wins.
func mostCommon(values []string) string {
	counts := map[string]int{}
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}
