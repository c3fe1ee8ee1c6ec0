package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultExtractTimeout bounds one extraction round trip
const DefaultExtractTimeout = 60 * time.Second

// HTTPExtractor implements the Extractor interface against a JSON endpoint
type HTTPExtractor struct {
	url    string
	token  string
	client *http.Client
}

// extractRequest carries the payload as a base64 data URL
type extractRequest struct {
	Image string `json:"image"`
}

// extractResponse nests the fields under "data"
type extractResponse struct {
	Data *ExtractedFields `json:"data"`
}

// NewHTTPExtractor creates a new HTTPExtractor. token is sent as a bearer
// token when not empty.
func NewHTTPExtractor(url, token string, timeout time.Duration) (*HTTPExtractor, error) {
	if url == "" {
		return nil, fmt.Errorf("extractor url is required")
	}
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}

	return &HTTPExtractor{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Extract posts the JPEG payload and decodes the returned fields
func (h *HTTPExtractor) Extract(ctx context.Context, jpeg []byte) (*ExtractedFields, error) {
	reqBody := extractRequest{
		Image: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling extractor: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: extractor returned status %d: %s", ErrExtraction, resp.StatusCode, truncate(body, 200))
	}

	var parsed extractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrExtraction, err)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("%w: response has no data object", ErrExtraction)
	}

	slog.Debug("Extracted fields",
		"payload_bytes", len(jpeg),
		"duration", time.Since(start),
	)
	return parsed.Data, nil
}

// Close is a no-op for the HTTP client
func (h *HTTPExtractor) Close() error {
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
