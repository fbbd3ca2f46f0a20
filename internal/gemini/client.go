// Package gemini speaks to Google's generative language REST API.
//
// One client serves the whole pipeline: council personas, vision
// probes, and ad hoc completions all share its rate limiter, so burst
// traffic from parallel sourcing cannot trip the per-minute quota.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"quadforge/internal/logging"
)

// ErrSchemaNotSupported is returned when the model rejects structured
// output for the requested schema. Callers fall back to prompt-level
// JSON instructions and fence stripping.
var ErrSchemaNotSupported = errors.New("response schema not supported by model")

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"

	// Minimum gap between requests across all callers.
	minRequestGap = 100 * time.Millisecond

	defaultSystemPrompt = "You are a senior FPV drone engineer. Be precise, " +
		"use real component behavior, and never invent specifications you cannot justify."
)

// Config holds client settings.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	VisionModel     string
	Timeout         time.Duration
	MaxOutputTokens int
}

// DefaultConfig returns the settings the pipeline runs with.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         defaultBaseURL,
		Model:           defaultModel,
		VisionModel:     defaultModel,
		Timeout:         2 * time.Minute,
		MaxOutputTokens: 16384,
	}
}

// Client is a rate-limited Gemini REST client.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	visionModel     string
	maxOutputTokens int
	httpClient      *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// New creates a client with default settings.
func New(apiKey string) *Client {
	return NewWithConfig(DefaultConfig(apiKey))
}

// NewWithConfig creates a client with custom settings. Zero values fall
// back to the defaults.
func NewWithConfig(cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	visionModel := strings.TrimSpace(cfg.VisionModel)
	if visionModel == "" {
		visionModel = model
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		model:           model,
		visionModel:     visionModel,
		maxOutputTokens: maxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// SetModel changes the model used for completions.
func (c *Client) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *Client) GetModel() string {
	return c.model
}

// Complete sends a prompt and returns the completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	logging.APIDebug("[CompleteWithSystem] model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	reqBody := Request{
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: userPrompt}}},
		},
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemPrompt}},
		},
		GenerationConfig: GenerationConfig{
			Temperature:     1.0,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	return c.generate(ctx, "CompleteWithSystem", c.model, reqBody)
}

// CompleteWithSchema sends a prompt and enforces a JSON response schema
// via generationConfig. Schemas nested deeper than the API tolerates
// are flattened to their top-level properties before sending.
func (c *Client) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}) (string, error) {
	if len(schema) == 0 {
		return "", fmt.Errorf("json schema is empty")
	}
	if depth := schemaMaxDepth(schema, 0); depth > schemaDepthLimit {
		logging.APIWarn("[CompleteWithSchema] schema depth %d exceeds limit %d; using shallow schema", depth, schemaDepthLimit)
		schema = shallowSchema(schema)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	logging.APIDebug("[CompleteWithSchema] model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	reqBody := Request{
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: userPrompt}}},
		},
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemPrompt}},
		},
		GenerationConfig: GenerationConfig{
			Temperature:      1.0,
			MaxOutputTokens:  c.maxOutputTokens,
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}
	return c.generate(ctx, "CompleteWithSchema", c.model, reqBody)
}

// CompleteWithImage sends a prompt with inline image bytes, using the
// vision model. The image goes first so the prompt can refer to it.
func (c *Client) CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	logging.APIDebug("[CompleteWithImage] model=%s mime=%s image_bytes=%d user_len=%d",
		c.visionModel, mimeType, len(image), len(userPrompt))

	reqBody := Request{
		Contents: []Content{
			{
				Role: "user",
				Parts: []Part{
					{InlineData: &InlineData{
						MimeType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(image),
					}},
					{Text: userPrompt},
				},
			},
		},
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemPrompt}},
		},
		GenerationConfig: GenerationConfig{
			Temperature:     1.0,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	return c.generate(ctx, "CompleteWithImage", c.visionModel, reqBody)
}

// generate runs one request through the rate limiter and retry loop.
func (c *Client) generate(ctx context.Context, op, model string, reqBody Request) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()

	if c.apiKey == "" {
		logging.APIError("[%s] API key not configured", op)
		return "", fmt.Errorf("API key not configured")
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusBadRequest &&
				reqBody.GenerationConfig.ResponseSchema != nil &&
				mentionsSchemaRejection(body) {
				return "", ErrSchemaNotSupported
			}
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var apiResp Response
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return "", fmt.Errorf("API error: %s", apiResp.Error.Message)
		}
		if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		var result strings.Builder
		for _, part := range apiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		response := strings.TrimSpace(result.String())

		logging.API("[%s] completed in %v model=%s response_len=%d tokens=%d",
			op, time.Since(startTime), model, len(response), apiResp.UsageMetadata.TotalTokenCount)
		return response, nil
	}

	logging.APIError("[%s] max retries exceeded after %v: %v", op, time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// mentionsSchemaRejection reports whether a 400 body blames the
// structured output fields.
func mentionsSchemaRejection(body []byte) bool {
	lower := strings.ToLower(string(body))
	markers := []string{
		"response_schema",
		"response_mime_type",
		"responsejsonschema",
		"responsemimetype",
		"responseschema",
	}
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.Contains(lower, "schema") && strings.Contains(lower, "nesting depth")
}

const schemaDepthLimit = 6

func schemaMaxDepth(value interface{}, depth int) int {
	maxDepth := depth
	switch typed := value.(type) {
	case map[string]interface{}:
		if depth+1 > maxDepth {
			maxDepth = depth + 1
		}
		for _, child := range typed {
			if childDepth := schemaMaxDepth(child, depth+1); childDepth > maxDepth {
				maxDepth = childDepth
			}
		}
	case []interface{}:
		if depth+1 > maxDepth {
			maxDepth = depth + 1
		}
		for _, child := range typed {
			if childDepth := schemaMaxDepth(child, depth+1); childDepth > maxDepth {
				maxDepth = childDepth
			}
		}
	}
	return maxDepth
}

func shallowSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object"}
	}
	props := map[string]interface{}{}
	if rawProps, ok := schema["properties"].(map[string]interface{}); ok {
		for key, value := range rawProps {
			props[key] = shallowSchemaProperty(value)
		}
	}
	result := map[string]interface{}{
		"type": "object",
	}
	if len(props) > 0 {
		result["properties"] = props
	}
	if required, ok := schema["required"]; ok {
		result["required"] = required
	}
	return result
}

func shallowSchemaProperty(value interface{}) map[string]interface{} {
	if valueMap, ok := value.(map[string]interface{}); ok {
		if enumVal, ok := valueMap["enum"]; ok {
			return map[string]interface{}{
				"type": "string",
				"enum": enumVal,
			}
		}
		if typeVal, ok := valueMap["type"].(string); ok && typeVal != "" {
			return map[string]interface{}{
				"type": typeVal,
			}
		}
	}
	return map[string]interface{}{
		"type": "string",
	}
}
