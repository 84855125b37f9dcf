// Package paypal integrates the PayPal REST API for webhook signature
// verification.
package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fortimind/subscriptions/internal/config"
)

const (
	tokenPath  = "/v1/oauth2/token"
	verifyPath = "/v1/notifications/verify-webhook-signature"

	verificationSuccess = "SUCCESS"
)

// Client calls the PayPal REST API. Access tokens from the
// client-credentials grant are cached until shortly before expiry.
type Client struct {
	apiBase      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.PayPalConfig) *Client {
	return &Client{
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	if c.clientID == "" || c.clientSecret == "" {
		return "", errors.New("paypal credentials are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request paypal token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token request failed: status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// SignatureHeaders are the transmission headers PayPal attaches to
// every webhook delivery.
type SignatureHeaders struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
}

// VerifyWebhookSignature checks an inbound delivery against PayPal's
// verification endpoint. It returns true only when PayPal reports
// SUCCESS for the configured webhook id.
func (c *Client) VerifyWebhookSignature(ctx context.Context, webhookID string, headers SignatureHeaders, event []byte) (bool, error) {
	accessToken, err := c.token(ctx)
	if err != nil {
		return false, err
	}

	payload, err := json.Marshal(verifyRequest{
		AuthAlgo:         headers.AuthAlgo,
		CertURL:          headers.CertURL,
		TransmissionID:   headers.TransmissionID,
		TransmissionSig:  headers.TransmissionSig,
		TransmissionTime: headers.TransmissionTime,
		WebhookID:        webhookID,
		WebhookEvent:     json.RawMessage(event),
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+verifyPath, strings.NewReader(string(payload)))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify webhook signature: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("paypal verification failed: status %d", resp.StatusCode)
	}

	var verification verifyResponse
	if err := json.Unmarshal(body, &verification); err != nil {
		return false, fmt.Errorf("decode verification response: %w", err)
	}
	return verification.VerificationStatus == verificationSuccess, nil
}
