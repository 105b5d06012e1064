package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ndharma28/omega-gaming/internal/config"
)

// OracleClient issues randomness requests to the external oracle. The call
// returns as soon as the request is accepted; the random value arrives later
// through the signed callback endpoint, or never, in which case the operator
// cancels the draw.
type OracleClient interface {
	RequestRandomness(ctx context.Context, correlationID string, roundID uint64) error
}

type oracleRequest struct {
	CorrelationID string `json:"correlation_id"`
	RoundID       uint64 `json:"round_id"`
}

type httpOracleClient struct {
	url    string
	secret string
	client *http.Client
}

func NewOracleClient(cfg *config.Config) OracleClient {
	if cfg.OracleURL == "" {
		// No oracle configured: requests are logged and fulfillment is
		// posted manually to the callback endpoint. Used in development.
		return &devOracleClient{}
	}
	return &httpOracleClient{
		url:    cfg.OracleURL,
		secret: cfg.OracleSecret,
		client: &http.Client{Timeout: cfg.OracleTimeout},
	}
}

func (c *httpOracleClient) RequestRandomness(ctx context.Context, correlationID string, roundID uint64) error {
	body, err := json.Marshal(oracleRequest{
		CorrelationID: correlationID,
		RoundID:       roundID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal oracle request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build oracle request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Oracle-Signature", SignPayload(c.secret, body))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("oracle rejected request: %d %s", resp.StatusCode, msg)
	}

	return nil
}

type devOracleClient struct{}

func (c *devOracleClient) RequestRandomness(ctx context.Context, correlationID string, roundID uint64) error {
	log.Printf("oracle (dev): randomness requested for round %d, correlation %s", roundID, correlationID)
	return nil
}

// SignPayload computes the hex HMAC-SHA256 of a payload with the shared
// oracle secret. The same signature scheme authenticates both directions.
func SignPayload(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPayload checks a callback signature in constant time.
func VerifyPayload(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(SignPayload(secret, payload))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
