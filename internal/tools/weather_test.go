package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherToolInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "Paris", r.URL.Query().Get("city"))
		assert.Equal(t, "current", r.URL.Query().Get("action"))
		json.NewEncoder(w).Encode(map[string]any{
			"temperature": 18.5,
			"conditions":  "partly cloudy",
		})
	}))
	defer srv.Close()

	tool := NewWeatherTool(srv.URL)
	out, err := tool.Invoke(context.Background(), map[string]any{"city": "Paris"})
	require.NoError(t, err)
	assert.Equal(t, 18.5, out["temperature"])
	assert.Equal(t, "Paris", out["city"])
}

func TestWeatherToolServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewWeatherTool(srv.URL)
	_, err := tool.Invoke(context.Background(), map[string]any{"city": "Paris"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWeatherToolNullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	tool := NewWeatherTool(srv.URL)
	_, err := tool.Invoke(context.Background(), map[string]any{"city": "Paris"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty payload")
}

func TestCurrencyToolNullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	tool := NewCurrencyTool(srv.URL)
	_, err := tool.Invoke(context.Background(), map[string]any{
		"amount": float64(1), "from": "EUR", "to": "USD",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty payload")
}

func TestCurrencyToolInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("amount"))
		assert.Equal(t, "EUR", r.URL.Query().Get("from"))
		assert.Equal(t, "USD", r.URL.Query().Get("to"))
		json.NewEncoder(w).Encode(map[string]any{"result": 108.2, "rate": 1.082})
	}))
	defer srv.Close()

	tool := NewCurrencyTool(srv.URL)
	out, err := tool.Invoke(context.Background(), map[string]any{
		"amount": float64(100), "from": "EUR", "to": "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, 108.2, out["result"])
	assert.Equal(t, "EUR", out["from"])
}

func TestToolSchemasAreValidJSON(t *testing.T) {
	for _, tool := range []Tool{NewWeatherTool("http://x"), NewCurrencyTool("http://x")} {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(tool.InputSchema(), &doc), "schema for %s", tool.Name())
		assert.Equal(t, "object", doc["type"])
	}
}
