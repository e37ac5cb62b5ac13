// Package gateway obtains payable links from the configured payment provider,
// trying strategies in order: merchant REST API, HTML form scrape, URL
// template. Every stage is fault-isolated; a failing stage only causes
// fallthrough to the next one.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_funnel_bot/internal/domain"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/settings"
)

// ErrNotConfigured signals that no payment provider is set up at all. The
// caller apologizes to the user and escalates instead of showing a broken
// link.
var ErrNotConfigured = errors.New("payment provider is not configured")

const (
	requestTimeout = 10 * time.Second
	currency       = "UAH"

	maxResponseBytes = 1 << 20
)

// Link fields the merchant REST API is known to answer with, tried in order.
var restLinkFields = []string{"url", "pay_url", "payment_url", "link", "invoice_url"}

// Invoice correlation fields the merchant REST API is known to answer with.
var restInvoiceFields = []string{"invoice", "invoice_id", "order_reference"}

type settingsSource interface {
	Value(ctx context.Context, key, fallback string) string
}

// Link is a payable URL plus the provider's correlation reference when one
// was returned.
type Link struct {
	URL       string
	InvoiceID string
}

// Adapter builds payment links for payment intents.
type Adapter struct {
	settings settingsSource
	client   *http.Client
	logger   *logrus.Entry
}

// NewAdapter constructs an Adapter. A nil client gets a default one with a
// hard timeout; provider calls are never unbounded.
func NewAdapter(src settingsSource, client *http.Client, logger *logrus.Entry) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = logging.Logger()
	}
	return &Adapter{settings: src, client: client, logger: logger}
}

// PaymentLink resolves a payable link for the intent, walking the strategy
// chain. It returns ErrNotConfigured when no strategy is configured.
func (a *Adapter) PaymentLink(ctx context.Context, payment domain.Payment) (Link, error) {
	if a == nil || a.settings == nil {
		return Link{}, errors.New("gateway adapter is not initialized")
	}
	if ctx == nil {
		return Link{}, errors.New("context is required")
	}

	apiURL := a.settings.Value(ctx, settings.KeyMerchantAPIURL, "")
	secret := a.settings.Value(ctx, settings.KeyMerchantSecret, "")
	if apiURL != "" && secret != "" {
		link, err := a.restLink(ctx, apiURL, secret, payment)
		if err == nil {
			return link, nil
		}
		a.logger.WithFields(logging.Fields{
			"event":      "gateway_rest_failed",
			"payment_id": payment.ID,
		}).WithError(err).Warn("merchant api attempt failed, falling through")
	}

	providerURL := a.settings.Value(ctx, settings.KeyProviderURL, "")
	if providerURL != "" {
		link, err := a.scrapeLink(ctx, providerURL, payment)
		if err == nil {
			return link, nil
		}
		a.logger.WithFields(logging.Fields{
			"event":      "gateway_scrape_failed",
			"payment_id": payment.ID,
		}).WithError(err).Warn("scrape attempt failed, redirecting to provider page")
		return Link{URL: providerURL}, nil
	}

	template := a.settings.Value(ctx, settings.KeyPaymentTemplate, "")
	if template != "" {
		return Link{URL: expandTemplate(template, payment)}, nil
	}

	return Link{}, ErrNotConfigured
}

// restLink posts a structured payload to the merchant API and picks the
// payable link out of the JSON response.
func (a *Adapter) restLink(ctx context.Context, apiURL, secret string, payment domain.Payment) (Link, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"merchant_id": a.settings.Value(ctx, settings.KeyMerchantID, ""),
		"amount":      payment.Amount,
		"currency":    currency,
		"order_id":    payment.ID,
		"player_id":   payment.PlayerID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Link{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return Link{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := a.client.Do(req)
	if err != nil {
		return Link{}, fmt.Errorf("merchant api request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Link{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Link{}, fmt.Errorf("merchant api status %d", resp.StatusCode)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Link{}, fmt.Errorf("decode response: %w", err)
	}

	link := firstString(fields, restLinkFields)
	if link == "" {
		return Link{}, errors.New("no payment link in merchant response")
	}

	return Link{URL: link, InvoiceID: firstString(fields, restInvoiceFields)}, nil
}

func firstString(fields map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if val, ok := fields[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}

func expandTemplate(template string, payment domain.Payment) string {
	replacer := strings.NewReplacer(
		"{amount}", strconv.Itoa(payment.Amount),
		"{player_id}", payment.PlayerID,
		"{payment_id}", payment.ID,
	)
	return replacer.Replace(template)
}
