package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// WeatherTool fetches current conditions or a forecast for a city from an
// HTTP weather service.
type WeatherTool struct {
	endpoint   string
	httpClient *http.Client
}

// NewWeatherTool creates a weather tool against the given service endpoint.
func NewWeatherTool(endpoint string) *WeatherTool {
	return &WeatherTool{
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
}

func (w *WeatherTool) Name() string { return "weather" }

func (w *WeatherTool) Description() string {
	return "Get current weather or a multi-day forecast for a city."
}

func (w *WeatherTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "description": "City name"},
			"action": {"type": "string", "enum": ["current", "forecast", "hourly"]},
			"days": {"type": "integer", "minimum": 1, "maximum": 14}
		},
		"required": ["city"],
		"additionalProperties": false
	}`)
}

// Invoke queries the weather service. An HTTP failure is returned as an
// error; the executor converts it into a non-fatal error result.
func (w *WeatherTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	city, _ := args["city"].(string)
	action, _ := args["action"].(string)
	if action == "" {
		action = "current"
	}

	q := url.Values{}
	q.Set("city", city)
	q.Set("action", action)
	if days, ok := args["days"].(float64); ok {
		q.Set("days", strconv.Itoa(int(days)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create weather request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("weather service status %d: %s", resp.StatusCode, body)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if payload == nil {
		// A body of JSON null decodes without error into a nil map.
		return nil, fmt.Errorf("weather service returned an empty payload")
	}

	payload["city"] = city
	payload["action"] = action
	return payload, nil
}
