package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// SignatureRequest asks the external e-signature provider to route a document
// to an ordered recipient list. The provider's own wire format beyond this
// request body is opaque to the engine.
type SignatureRequest struct {
	DocumentID   string   `json:"document_id"`
	DocumentName string   `json:"document_name"`
	Recipients   []string `json:"recipients"` // emails, in signing order
	Sequential   bool     `json:"sequential"`
}

// SignerClient talks to the external e-signature provider over HTTP.
type SignerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSignerClient creates a signer client. An empty base URL yields a nil
// client, which callers treat as signature routing being disabled.
func NewSignerClient(baseURL string, timeout time.Duration) *SignerClient {
	if baseURL == "" {
		return nil
	}
	return &SignerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateSubmission submits a document for signature and returns the
// provider's opaque submission reference.
func (c *SignerClient) CreateSubmission(ctx context.Context, req SignatureRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal signature request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/submissions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to build signer request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "signature provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeInternal, "signature provider returned status %d", resp.StatusCode)
	}

	var payload struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to decode signer response")
	}
	if payload.SubmissionID == "" {
		return "", errors.New(errors.ErrCodeInternal, "signature provider returned empty submission id")
	}

	return payload.SubmissionID, nil
}
