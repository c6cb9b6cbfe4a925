package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable signals the capability has no API key configured. The
// caller treats it like any other valuation failure and falls back.
var ErrUnavailable = errors.New("enrichment capability not configured")

// HTTPClient matches net/http.Client Do signature for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig defines settings for the OpenAI-compatible client.
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	PlateModel     string
	ValuationModel string
}

// Client talks to an OpenAI-compatible chat-completions endpoint. It
// implements both PlateReader and Valuer. One attempt per call; timeouts
// belong to the underlying HTTP client.
type Client struct {
	apiKey         string
	baseURL        string
	plateModel     string
	valuationModel string
	httpClient     HTTPClient
}

var (
	_ PlateReader = (*Client)(nil)
	_ Valuer      = (*Client)(nil)
)

// NewClient creates an enrichment client.
func NewClient(httpClient HTTPClient, cfg ClientConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	plateModel := cfg.PlateModel
	if plateModel == "" {
		plateModel = "gpt-4.1-mini"
	}
	valuationModel := cfg.ValuationModel
	if valuationModel == "" {
		valuationModel = "gpt-4.1-mini"
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(base, "/"),
		plateModel:     plateModel,
		valuationModel: valuationModel,
		httpClient:     httpClient,
	}
}

// Available reports whether the client can reach the external capability.
func (c *Client) Available() bool { return c.apiKey != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ReadPlate extracts a registration identifier from the photo. Every
// failure path collapses to PlateUnknown; the error never crosses this
// boundary.
func (c *Client) ReadPlate(ctx context.Context, imageURL string) string {
	if imageURL == "" || !c.Available() {
		return PlateUnknown
	}

	req := chatRequest{
		Model: c.plateModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: "Extract ONLY the license plate number from this car photo. Return nothing else - just the plate number text, no explanations, no additional text."},
				{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
			},
		}},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return PlateUnknown
	}
	plate := strings.Join(strings.Fields(content), " ")
	if plate == "" {
		return PlateUnknown
	}
	return plate
}

// valuationSchema constrains the model to the three price fields.
var valuationSchema = json.RawMessage(`{
  "type": "json_schema",
  "json_schema": {
    "name": "valuation",
    "strict": true,
    "schema": {
      "type": "object",
      "properties": {
        "fair_price": {"type": "number"},
        "range_low": {"type": "number"},
        "range_high": {"type": "number"}
      },
      "required": ["fair_price", "range_low", "range_high"],
      "additionalProperties": false
    }
  }
}`)

// EstimateValue asks the model for a price band. Errors are returned so the
// enricher can apply its deterministic fallback.
func (c *Client) EstimateValue(ctx context.Context, summary ListingSummary) (Estimate, error) {
	if !c.Available() {
		return Estimate{}, ErrUnavailable
	}

	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return Estimate{}, fmt.Errorf("encode listing summary: %w", err)
	}

	req := chatRequest{
		Model: c.valuationModel,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are an automotive pricing analyst. Estimate a fair used price and price range only.",
			},
			{
				Role: "user",
				Content: "Return ONLY a JSON object with fair_price, range_low, and range_high for the following car. Do not include any other fields:\n" +
					string(summaryJSON),
			},
		},
		ResponseFormat: valuationSchema,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return Estimate{}, err
	}

	var parsed struct {
		FairPrice float64 `json:"fair_price"`
		RangeLow  float64 `json:"range_low"`
		RangeHigh float64 `json:"range_high"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Estimate{}, fmt.Errorf("decode valuation: %w", err)
	}

	return Estimate{
		FairPrice: parsed.FairPrice,
		RangeLow:  parsed.RangeLow,
		RangeHigh: parsed.RangeHigh,
	}, nil
}

// complete posts one chat-completions request and returns the first
// choice's content.
func (c *Client) complete(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("capability status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
