// internal/adapter/classifier/http.go

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"geowhisper/internal/domain/chat"
)

// HTTPClassifier calls an external content classification service over
// HTTP. Callers bound the request with their own context timeout; the
// client timeout here is a backstop only.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPClassifier creates a classifier bound to the given endpoint.
func NewHTTPClassifier(endpoint, apiKey string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Violations      []string `json:"violations"`
	ConfidenceScore float64  `json:"confidenceScore"`
	SuggestedAction string   `json:"suggestedAction"`
}

// Classify sends the text to the classification service and maps its
// response onto the domain classification.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (*chat.Classification, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshaling classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error decoding classifier response: %w", err)
	}

	action := parsed.SuggestedAction
	switch action {
	case "BLOCK", "WARN", "ALLOW":
	default:
		action = "ALLOW"
	}

	return &chat.Classification{
		Violations:      parsed.Violations,
		Confidence:      parsed.ConfidenceScore,
		SuggestedAction: action,
	}, nil
}
