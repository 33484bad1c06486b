// Package gateway is a thin client for the SMS/voice cloud API: account
// balance, SMS dispatch, dynamic call webhooks and the hosted SIM number.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-phone-2fa/internal/domain"
)

// StatusSent is the gateway status for an accepted SMS.
const StatusSent = "1801"

const defaultTimeout = 15 * time.Second

// Client talks to the gateway's REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient returns a client for baseURL. A non-positive timeout uses the default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// BalanceSufficient reports whether the account can pay for at least one SMS.
func (c *Client) BalanceSufficient(ctx context.Context) (bool, error) {
	var out struct {
		Balance  float64 `json:"balance"`
		UnitCost float64 `json:"smsUnitCost"`
	}
	if err := c.do(ctx, http.MethodGet, "/account/balance", nil, &out); err != nil {
		return false, err
	}
	return out.Balance > 0 && out.Balance >= out.UnitCost, nil
}

// SendSMS submits text to a single recipient. A non-1801 status is not an
// error: it is returned as a rejected dispatch carrying the gateway's values.
func (c *Client) SendSMS(ctx context.Context, to, text string) (*domain.SMSDispatch, error) {
	req := map[string]interface{}{
		"text":       text,
		"recipients": []string{to},
	}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Report  []struct {
			TrackingID json.RawMessage `json:"trackingId"`
		} `json:"report"`
	}
	if err := c.do(ctx, http.MethodPost, "/sms/send", req, &out); err != nil {
		return nil, err
	}
	d := &domain.SMSDispatch{
		Accepted: out.Status == StatusSent,
		Status:   out.Status,
		Message:  out.Message,
	}
	if len(out.Report) > 0 {
		d.ExternalRef = strings.Trim(string(out.Report[0].TrackingID), `"`)
	}
	return d, nil
}

// SetDynamicWebhook asks the gateway to POST events for originator to url
// for the next wait period.
func (c *Client) SetDynamicWebhook(ctx context.Context, url, originator, purpose string, wait time.Duration) error {
	req := map[string]interface{}{
		"url":        url,
		"originator": originator,
		"purpose":    purpose,
		"waitTime":   int(wait / time.Second),
	}
	return c.do(ctx, http.MethodPost, "/account/webhook", req, nil)
}

// HostedNumber returns the provider-hosted SIM users should call.
func (c *Client) HostedNumber(ctx context.Context) (*domain.HostedNumber, error) {
	var out struct {
		MSISDN string `json:"msisdn"`
	}
	if err := c.do(ctx, http.MethodGet, "/account/sim", nil, &out); err != nil {
		return nil, err
	}
	if out.MSISDN == "" {
		return nil, fmt.Errorf("%w: gateway: no hosted number on account", domain.ErrUpstream)
	}
	return &domain.HostedNumber{MSISDN: out.MSISDN}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gateway: send request: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: gateway: read response: %w", domain.ErrUpstream, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: gateway: error %d: %s", domain.ErrUpstream, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: gateway: parse response: %w", domain.ErrUpstream, err)
	}
	return nil
}
