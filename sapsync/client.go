package sapsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmdatafocus/partners_backend/utils"
)

// TimeoutErrorMessage is the canonical message recorded when a SAP request
// exceeds the configured timeout.
const TimeoutErrorMessage = "sap request timed out"

// Dispatcher sends one payload to SAP and returns the parsed response body.
// The segment engine only ever talks to SAP through this.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, path string, payload any) (map[string]any, error)
}

// Lister pages through SAP's partner listing for the reverse sync.
type Lister interface {
	ListPartners(ctx context.Context, page, pageSize int, updatedAfter *string) (PartnerPage, error)
}

// PartnerPage is one page of the SAP partner listing. NextPage and HasMore
// are optional signals; the ingester falls back to a declining page-size
// heuristic when both are absent.
type PartnerPage struct {
	Items    []json.RawMessage `json:"items"`
	NextPage *int              `json:"next_page"`
	HasMore  *bool             `json:"has_more"`
}

type sapClient struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *sapClient {
	return &sapClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout()},
	}
}

func (c *sapClient) Dispatch(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, utils.NewExternalError(TimeoutErrorMessage, nil)
		}
		return nil, utils.NewExternalError("sap request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, utils.NewExternalError(extractErrorMessage(resp.StatusCode, raw), nil)
	}

	parsed := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			// Non-JSON success bodies are tolerated; the segment engine only
			// inspects the body for the primary-record external id.
			return map[string]any{}, nil
		}
	}
	return parsed, nil
}

func (c *sapClient) ListPartners(ctx context.Context, page, pageSize int, updatedAfter *string) (PartnerPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	if updatedAfter != nil && *updatedAfter != "" {
		params.Set("updated_after", *updatedAfter)
	}

	endpoint := c.cfg.BaseURL + "/api/business-partners?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PartnerPage{}, err
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return PartnerPage{}, utils.NewExternalError(TimeoutErrorMessage, nil)
		}
		return PartnerPage{}, utils.NewExternalError("sap list request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PartnerPage{}, utils.NewExternalError(extractErrorMessage(resp.StatusCode, raw), nil)
	}

	var parsed struct {
		Items    []json.RawMessage `json:"items"`
		Data     []json.RawMessage `json:"data"`
		Results  []json.RawMessage `json:"results"`
		NextPage *int              `json:"next_page"`
		HasMore  *bool             `json:"has_more"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return PartnerPage{}, utils.NewExternalError("sap list response is not valid json", err)
	}

	items := parsed.Items
	if len(items) == 0 {
		items = parsed.Data
	}
	if len(items) == 0 {
		items = parsed.Results
	}
	return PartnerPage{Items: items, NextPage: parsed.NextPage, HasMore: parsed.HasMore}, nil
}

// extractErrorMessage surfaces the most specific human-readable message
// found in an error response body, falling back to a generic status-code
// message.
func extractErrorMessage(status int, body []byte) string {
	fallback := fmt.Sprintf("sap api error %d", status)
	if len(body) == 0 {
		return fallback
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		text := strings.TrimSpace(string(body))
		if text != "" && len(text) <= 500 {
			return fmt.Sprintf("%s: %s", fallback, text)
		}
		return fallback
	}

	for _, key := range []string{"message", "error_description", "error", "detail", "Message"} {
		if v, ok := parsed[key]; ok {
			switch t := v.(type) {
			case string:
				if strings.TrimSpace(t) != "" {
					return t
				}
			case map[string]any:
				// SAP-style nested {"error": {"message": {"value": "..."}}}
				if msg := nestedMessage(t); msg != "" {
					return msg
				}
			}
		}
	}
	return fallback
}

func nestedMessage(m map[string]any) string {
	for _, key := range []string{"message", "value", "text"} {
		switch t := m[key].(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return t
			}
		case map[string]any:
			if msg := nestedMessage(t); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
