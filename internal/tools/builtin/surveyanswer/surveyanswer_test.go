package surveyanswer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeStore struct {
	question, answer string
	err               error
}

func (f *fakeStore) SaveAnswer(ctx context.Context, callID, question, answer string) error {
	f.question, f.answer = question, answer
	return f.err
}

func TestHandler_Success(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	defs := Tools(store)
	out, err := defs[0].Handler(context.Background(), `{"question":"satisfied?","answer":"yes"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.question != "satisfied?" || store.answer != "yes" {
		t.Errorf("store not called as expected: %+v", store)
	}
	var res saveAnswerResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Saved {
		t.Error("Saved = false, want true")
	}
}

func TestHandler_StoreError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{err: errors.New("write failed")}
	defs := Tools(store)
	if _, err := defs[0].Handler(context.Background(), `{"question":"q","answer":"a"}`); err == nil {
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
	if toolSchema().Name != "save_answer" {
		t.Errorf("Name = %q, want save_answer", toolSchema().Name)
	}
}
