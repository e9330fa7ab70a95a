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

// CurrencyTool converts an amount between currencies using an HTTP exchange
// rate service.
type CurrencyTool struct {
	endpoint   string
	httpClient *http.Client
}

// NewCurrencyTool creates a currency tool against the given service endpoint.
func NewCurrencyTool(endpoint string) *CurrencyTool {
	return &CurrencyTool{
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
}

func (c *CurrencyTool) Name() string { return "currency" }

func (c *CurrencyTool) Description() string {
	return "Convert an amount from one currency to another at the current rate."
}

func (c *CurrencyTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"amount": {"type": "number", "minimum": 0},
			"from": {"type": "string", "minLength": 3, "maxLength": 3},
			"to": {"type": "string", "minLength": 3, "maxLength": 3}
		},
		"required": ["amount", "from", "to"],
		"additionalProperties": false
	}`)
}

func (c *CurrencyTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	amount, _ := args["amount"].(float64)
	from, _ := args["from"].(string)
	to, _ := args["to"].(string)

	q := url.Values{}
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	q.Set("from", from)
	q.Set("to", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/convert?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create currency request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("currency service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("currency service status %d: %s", resp.StatusCode, body)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode currency response: %w", err)
	}
	if payload == nil {
		// A body of JSON null decodes without error into a nil map.
		return nil, fmt.Errorf("currency service returned an empty payload")
	}

	payload["from"] = from
	payload["to"] = to
	return payload, nil
}
