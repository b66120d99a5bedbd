package callback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeStore struct {
	phone, when string
	err         error
}

func (f *fakeStore) ScheduleCallback(ctx context.Context, callID, phone, when string) error {
	f.phone, f.when = phone, when
	return f.err
}

func TestHandler_Success(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	defs := Tools(store)
	out, err := defs[0].Handler(context.Background(), `{"phone":"+15551234","when":"2026-08-01T15:00:00Z"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.phone != "+15551234" || store.when != "2026-08-01T15:00:00Z" {
		t.Errorf("store not called as expected: %+v", store)
	}
	var res callbackResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Scheduled || res.When != "2026-08-01T15:00:00Z" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHandler_StoreError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{err: errors.New("queue full")}
	defs := Tools(store)
	if _, err := defs[0].Handler(context.Background(), `{"phone":"x","when":"y"}`); err == nil {
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
	if toolSchema().Name != "schedule_callback" {
		t.Errorf("Name = %q, want schedule_callback", toolSchema().Name)
	}
}
