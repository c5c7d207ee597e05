package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookstoreBack/internal/models"
)

// The verification call is bounded so a hung authority fails as a transport
// error instead of stalling the coordinator.
const verifyTimeout = 30 * time.Second

type ReceiptVerifierConfig struct {
	// Endpoint is the verification authority URL, including any access code
	// query parameter.
	Endpoint   string
	HTTPClient *http.Client
}

// ReceiptVerifierService submits receipt blobs to the remote verification
// authority and decodes the structured response. It does not retry; retry
// policy belongs to the coordinator. It also does not interpret the status
// code beyond decoding it — except that callers must remember a nonzero
// status never grants entitlement, with the explicit 21006 exception
// (expired legacy subscription, receipt still decoded and usable).
type ReceiptVerifierService struct {
	endpoint string
	client   *http.Client
}

func NewReceiptVerifierService(cfg ReceiptVerifierConfig) (*ReceiptVerifierService, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("receipt verifier: endpoint is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: verifyTimeout}
	}
	return &ReceiptVerifierService{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		client:   client,
	}, nil
}

// Verify POSTs the base64 of the raw receipt bytes, form-encoded, and
// decodes the JSON response. Any date that fails the authority's canonical
// format fails the whole decode. The result is returned even for nonzero
// status codes; interpreting them is the resolver's job.
func (s *ReceiptVerifierService) Verify(ctx context.Context, receipt []byte) (models.ValidationResult, error) {
	if len(receipt) == 0 {
		return models.ValidationResult{}, fmt.Errorf("receipt verifier: %w", models.ErrReceiptAbsent)
	}

	body := base64.StdEncoding.EncodeToString(receipt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
	if err != nil {
		return models.ValidationResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("receipt verifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ValidationResult{}, fmt.Errorf("receipt verifier: %s (%s)",
			resp.Status, strings.TrimSpace(string(snippet)))
	}

	var result models.ValidationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.ValidationResult{}, fmt.Errorf("receipt verifier: decode: %w", err)
	}
	return result, nil
}
