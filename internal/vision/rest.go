package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultEndpoint is the Cloud Vision batch annotate REST endpoint.
const DefaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// RESTClient calls images:annotate with TEXT_DETECTION.
type RESTClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewRESTClient builds a client. An empty endpoint means DefaultEndpoint.
func NewRESTClient(endpoint, apiKey string, timeout time.Duration) *RESTClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &RESTClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type batchRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageRef  `json:"image"`
	Features []feature `json:"features"`
}

type imageRef struct {
	Source imageSource `json:"source"`
}

type imageSource struct {
	ImageURI string `json:"imageUri"`
}

type feature struct {
	Type string `json:"type"`
}

type batchResponse struct {
	Responses []json.RawMessage `json:"responses"`
}

func (c *RESTClient) Annotate(ctx context.Context, uris []string) ([]Response, error) {
	req := batchRequest{Requests: make([]imageRequest, len(uris))}
	for i, u := range uris {
		req.Requests[i] = imageRequest{
			Image:    imageRef{Source: imageSource{ImageURI: u}},
			Features: []feature{{Type: "TEXT_DETECTION"}},
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	target := c.endpoint
	if c.apiKey != "" {
		target += "?key=" + url.QueryEscape(c.apiKey)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	defer res.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("annotate: status %d: %s", res.StatusCode, truncate(payload, 512))
	}
	var batch batchResponse
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(batch.Responses) != len(uris) {
		return nil, fmt.Errorf("annotate: got %d responses for %d images", len(batch.Responses), len(uris))
	}
	out := make([]Response, len(uris))
	for i, raw := range batch.Responses {
		out[i] = Decode(compact(raw))
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
