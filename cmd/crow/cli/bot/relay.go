package bot

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

	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/logging"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Relay forwards questions to a hosted answer service.
type Relay struct {
	url    string
	token  string
	name   string
	client *http.Client
	logger *zap.Logger
}

// NewRelay returns a relay posting to baseURL + "/answer".
func NewRelay(baseURL, token, name string, timeout time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		url:    strings.TrimSuffix(baseURL, "/") + "/answer",
		token:  token,
		name:   name,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("relay"),
	}
}

type relayRequest struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

type relayResponse struct {
	Data    string `json:"data"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Ask posts message and returns the answer text.
func (r *Relay) Ask(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(relayRequest{Message: message, Name: r.name})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", r.url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	r.logger.Debug("relay response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e relayResponse
		if json.Unmarshal(raw, &e) == nil && e.Message != "" {
			return "", fmt.Errorf("answer service: HTTP %d: %s", resp.StatusCode, e.Message)
		}
		return "", fmt.Errorf("answer service: HTTP %d: %s", resp.StatusCode,
			logging.Truncate(strings.TrimSpace(string(raw)), 200))
	}

	var out relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(out.Data) == "" {
		return "", errors.New("answer service returned no data")
	}
	return out.Data, nil
}
