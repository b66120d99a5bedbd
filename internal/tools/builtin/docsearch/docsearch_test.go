package docsearch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeStore struct {
	query string
	limit int
	out   []Result
	err   error
}

func (f *fakeStore) SearchDocuments(ctx context.Context, query string, limit int) ([]Result, error) {
	f.query, f.limit = query, limit
	return f.out, f.err
}

func TestHandler_Success(t *testing.T) {
	t.Parallel()
	store := &fakeStore{out: []Result{{Title: "Refund policy", Snippet: "30 day window", Score: 0.9}}}
	defs := Tools(store)
	out, err := defs[0].Handler(context.Background(), `{"query":"refund"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.query != "refund" || store.limit != defaultLimit {
		t.Errorf("store called with query=%q limit=%d", store.query, store.limit)
	}
	var res searchResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Title != "Refund policy" {
		t.Errorf("unexpected results: %+v", res.Results)
	}
}

func TestHandler_StoreError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{err: errors.New("index unavailable")}
	defs := Tools(store)
	if _, err := defs[0].Handler(context.Background(), `{"query":"x"}`); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestHandler_BadJSON(t *testing.T) {
	t.Parallel()
	defs := Tools(&fakeStore{})
	if _, err := defs[0].Handler(context.Background(), `{bad`); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestToolSchema_Name(t *testing.T) {
	t.Parallel()
	if toolSchema().Name != "search_documents" {
		t.Errorf("Name = %q, want search_documents", toolSchema().Name)
	}
}
