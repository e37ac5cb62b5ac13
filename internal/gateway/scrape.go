package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"tg_funnel_bot/internal/domain"
)

// Some providers expose no API at all, only a server-rendered payment form.
// The scrape flow loads that page, replays the hidden form fields together
// with our order data, and fishes the payable link out of the result.

var (
	hiddenInputRe = regexp.MustCompile(`(?is)<input[^>]*type=["']hidden["'][^>]*>`)
	inputNameRe   = regexp.MustCompile(`(?is)name=["']([^"']+)["']`)
	inputValueRe  = regexp.MustCompile(`(?is)value=["']([^"']*)["']`)
	formActionRe  = regexp.MustCompile(`(?is)<form[^>]*action=["']([^"']+)["']`)

	// Markers the payable link is known to hide behind, tried in order.
	payLinkRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)data-pay-url=["'](https?://[^"']+)["']`),
		regexp.MustCompile(`(?is)href=["'](https?://[^"']*(?:pay|invoice|checkout)[^"']*)["']`),
		regexp.MustCompile(`(?is)window\.location(?:\.href)?\s*=\s*["'](https?://[^"']+)["']`),
	}
)

// scrapeLink drives the GET-then-POST form flow against the provider page.
// Cookies from the GET are carried into the POST via the jar.
func (a *Adapter) scrapeLink(ctx context.Context, providerURL string, payment domain.Payment) (Link, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return Link{}, fmt.Errorf("cookie jar: %w", err)
	}
	client := &http.Client{
		Timeout: requestTimeout,
		Jar:     jar,
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	page, err := fetch(reqCtx, client, http.MethodGet, providerURL, nil)
	if err != nil {
		return Link{}, fmt.Errorf("load provider page: %w", err)
	}

	form := hiddenFields(page)
	form.Set("order_id", payment.ID)
	form.Set("player_id", payment.PlayerID)
	form.Set("amount", strconv.Itoa(payment.Amount))

	action := formAction(page, providerURL)

	postCtx, cancelPost := context.WithTimeout(ctx, requestTimeout)
	defer cancelPost()

	result, err := fetch(postCtx, client, http.MethodPost, action, form)
	if err != nil {
		return Link{}, fmt.Errorf("submit provider form: %w", err)
	}

	link := payableLink(result)
	if link == "" {
		return Link{}, errors.New("no payable link in provider response")
	}
	return Link{URL: link}, nil
}

func fetch(ctx context.Context, client *http.Client, method, target string, form url.Values) (string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return "", err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("provider status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// hiddenFields extracts the hidden inputs of the provider form, preserving
// tokens like CSRF values the POST must echo back.
func hiddenFields(page string) url.Values {
	form := url.Values{}
	for _, input := range hiddenInputRe.FindAllString(page, -1) {
		nameMatch := inputNameRe.FindStringSubmatch(input)
		if nameMatch == nil {
			continue
		}
		value := ""
		if valueMatch := inputValueRe.FindStringSubmatch(input); valueMatch != nil {
			value = valueMatch[1]
		}
		form.Set(nameMatch[1], value)
	}
	return form
}

// formAction resolves the form target against the provider page URL; pages
// commonly use relative actions.
func formAction(page, providerURL string) string {
	match := formActionRe.FindStringSubmatch(page)
	if match == nil {
		return providerURL
	}

	base, err := url.Parse(providerURL)
	if err != nil {
		return providerURL
	}
	action, err := url.Parse(match[1])
	if err != nil {
		return providerURL
	}
	return base.ResolveReference(action).String()
}

func payableLink(page string) string {
	for _, re := range payLinkRes {
		if match := re.FindStringSubmatch(page); match != nil {
			return match[1]
		}
	}
	return ""
}
