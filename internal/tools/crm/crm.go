// Package crm is the business-data Store adapter for the built-in tools
// that read or write an external CRM/scheduling/knowledge-base system —
// save_answer, confirm_appointment, capture_lead, search_documents, and
// schedule_callback (internal/tools/builtin/*). Unlike
// internal/tools/webhook, which forwards an agent-configured tool's JSON
// verbatim, each method here has a fixed, typed request and response shape
// because the calling code (internal/tools/builtin/*) already knows it.
//
// As with internal/tools/webhook, no HTTP client library appears anywhere
// in the reference corpus for outbound REST calls, so this package uses
// net/http directly rather than introducing a new dependency.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/docsearch"
)

const maxResponseBytes = 64 * 1024

// Config configures a [Store].
type Config struct {
	// BaseURL is the CRM/scheduling system's API root, e.g.
	// "https://crm.example.com/api".
	BaseURL string

	// Timeout bounds a single request. Defaults to [tools.DefaultTimeout].
	Timeout time.Duration
}

// Store implements every external-data built-in tool's Store interface
// over a single backing HTTP API.
type Store struct {
	baseURL string
	client  *http.Client
}

// New creates a [Store] from cfg.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = tools.DefaultTimeout
	}
	return &Store{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Store) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("crm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Every call here can be retried by the caller (a tool result timeout does
	// not imply the CRM never received the request), so each attempt carries a
	// fresh idempotency key the CRM can use to collapse duplicate appointment/
	// lead/callback writes down to one.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("crm: request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("crm: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("crm: %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("crm: decode response: %w", err)
	}
	return nil
}

// SaveAnswer satisfies internal/tools/builtin/surveyanswer.Store.
func (s *Store) SaveAnswer(ctx context.Context, callID, question, answer string) error {
	return s.post(ctx, "/surveys/answers", map[string]string{
		"call_id":  callID,
		"question": question,
		"answer":   answer,
	}, nil)
}

// ConfirmAppointment satisfies internal/tools/builtin/appointment.Store.
func (s *Store) ConfirmAppointment(ctx context.Context, callID, date string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := s.post(ctx, "/appointments/confirm", map[string]string{
		"call_id": callID,
		"date":    date,
	}, &out)
	return out.ID, err
}

// CaptureLead satisfies internal/tools/builtin/lead.Store.
func (s *Store) CaptureLead(ctx context.Context, callID, name, phone, interest string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := s.post(ctx, "/leads", map[string]string{
		"call_id":  callID,
		"name":     name,
		"phone":    phone,
		"interest": interest,
	}, &out)
	return out.ID, err
}

// ScheduleCallback satisfies internal/tools/builtin/callback.Store.
func (s *Store) ScheduleCallback(ctx context.Context, callID, phone, when string) error {
	return s.post(ctx, "/callbacks", map[string]string{
		"call_id": callID,
		"phone":   phone,
		"when":    when,
	}, nil)
}

// SearchDocuments satisfies internal/tools/builtin/docsearch.Store.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]docsearch.Result, error) {
	var out struct {
		Results []docsearch.Result `json:"results"`
	}
	err := s.post(ctx, "/documents/search", map[string]any{
		"query": query,
		"limit": limit,
	}, &out)
	return out.Results, err
}
