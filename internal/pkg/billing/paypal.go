package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/docquery/docquery/internal/pkg/env"
)

const defaultPayPalAPIURL = "https://api-m.sandbox.paypal.com"

// PayPalClient talks to the PayPal REST API. All calls run with a bounded
// timeout; a timeout means "not applied, safe to retry".
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClientFromEnv builds a client from environment configuration.
// Returns nil when no credentials are configured (local dev without billing).
func NewPayPalClientFromEnv() *PayPalClient {
	clientID := env.GetEnv("PAYPAL_CLIENT_ID", "")
	clientSecret := env.GetEnv("PAYPAL_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &PayPalClient{
		baseURL:      strings.TrimRight(env.GetEnv("PAYPAL_API_URL", defaultPayPalAPIURL), "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    env.GetEnv("PAYPAL_WEBHOOK_ID", ""),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// PayPalProviderFromEnv returns the env-configured client as a
// ProviderClient, or a nil interface when billing is not configured. Avoids
// handing a typed nil pointer to code that checks the interface against nil.
func PayPalProviderFromEnv() ProviderClient {
	c := NewPayPalClientFromEnv()
	if c == nil {
		return nil
	}
	return c
}

func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("paypal token request failed: %s: %s", resp.Status, body)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	c.accessToken = tokenResp.AccessToken
	// renew a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func (c *PayPalClient) doJSON(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("paypal %s %s failed: %s: %s", method, path, resp.Status, raw)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// GetSubscription fetches the provider-side subscription state.
func (c *PayPalClient) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	var raw struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		PlanID      string `json:"plan_id"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
		} `json:"billing_info"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(subscriptionID), nil, &raw); err != nil {
		return nil, err
	}

	sub := &ProviderSubscription{
		ID:     raw.ID,
		Status: raw.Status,
		PlanID: raw.PlanID,
	}
	if t, err := time.Parse(time.RFC3339, raw.BillingInfo.NextBillingTime); err == nil {
		sub.NextBillingTime = &t
	}
	return sub, nil
}

// CancelSubscription cancels the provider-side subscription.
func (c *PayPalClient) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	payload := map[string]string{"reason": reason}
	return c.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions/"+url.PathEscape(subscriptionID)+"/cancel", payload, nil)
}

// WebhookVerificationInput carries the transmission headers PayPal sends
// alongside a webhook delivery.
type WebhookVerificationInput struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
	RawBody          []byte
}

// VerifyWebhookSignatureRemote asks PayPal's verification endpoint whether a
// delivery is authentic. Requires PAYPAL_WEBHOOK_ID; any transport error or
// non-SUCCESS status counts as unverified.
func (c *PayPalClient) VerifyWebhookSignatureRemote(ctx context.Context, in WebhookVerificationInput) (bool, error) {
	if c.webhookID == "" {
		return false, fmt.Errorf("PAYPAL_WEBHOOK_ID not configured")
	}

	payload := map[string]interface{}{
		"transmission_id":   in.TransmissionID,
		"transmission_time": in.TransmissionTime,
		"transmission_sig":  in.TransmissionSig,
		"cert_url":          in.CertURL,
		"auth_algo":         in.AuthAlgo,
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(in.RawBody),
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &result); err != nil {
		return false, err
	}
	return result.VerificationStatus == "SUCCESS", nil
}
