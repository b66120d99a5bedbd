// Package kv wraps the Redis client used to look up per-call agent
// configuration and append recorded audio, grounded on the
// github.com/redis/go-redis/v9 client usage in the reference corpus's
// Redis-backed memory store. Keys follow the voiceai:call:{id}:* convention
// from the external interface contract: agent config lives at
// voiceai:call:{id}:agent, recorded audio at voiceai:call:{id}:audio.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when an agent config key does not exist.
var ErrNotFound = fmt.Errorf("kv: key not found")

// Store wraps a Redis client for the bridge's access patterns: agent
// config lookup on call start, append-only audio recording and transcript
// events during the call, and the cost snapshot at call end.
type Store struct {
	client *redis.Client
}

// Config holds connection parameters for New.
type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// New dials a Redis client from Config. The client is lazy: no network
// round trip happens until the first command.
func New(cfg Config) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		}),
	}
}

// NewFromClient wraps an already-constructed client, used by tests to point
// at a miniredis instance.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func agentKey(callID string) string      { return fmt.Sprintf("voiceai:call:%s:agent", callID) }
func audioKey(callID string) string      { return fmt.Sprintf("voiceai:call:%s:audio", callID) }
func transcriptKey(callID string) string { return fmt.Sprintf("voiceai:call:%s:transcript", callID) }
func costKey(callID string) string       { return fmt.Sprintf("voiceai:call:%s:cost", callID) }

// GetAgentConfig reads and decodes the AgentConfig JSON document for a call.
// Returns ErrNotFound if the key is absent; the caller is expected to close
// the call with an ERROR frame in that case per the external interface
// contract.
func (s *Store) GetAgentConfig(ctx context.Context, callID string, out any) error {
	data, err := s.client.Get(ctx, agentKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("kv: get agent config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("kv: decode agent config: %w", err)
	}
	return nil
}

// AppendAudio appends a chunk of recorded audio to the per-call blob stream.
// Object-store flush of this stream happens out of band, per the external
// interface contract; this method only performs the Redis-side append.
func (s *Store) AppendAudio(ctx context.Context, callID string, chunk []byte) error {
	if err := s.client.Append(ctx, audioKey(callID), string(chunk)).Err(); err != nil {
		return fmt.Errorf("kv: append audio: %w", err)
	}
	return nil
}

// AppendTranscriptEvent appends one newline-delimited JSON record to the
// per-call transcript stream, keyed by voiceai:call:{id}:transcript per the
// external interface contract's "writes call events, transcripts, and audio
// chunks back to the same store".
func (s *Store) AppendTranscriptEvent(ctx context.Context, callID string, event any) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kv: encode transcript event: %w", err)
	}
	b = append(b, '\n')
	if err := s.client.Append(ctx, transcriptKey(callID), string(b)).Err(); err != nil {
		return fmt.Errorf("kv: append transcript event: %w", err)
	}
	return nil
}

// SetCost writes the final cost snapshot for a completed call, keyed by
// voiceai:call:{id}:cost.
func (s *Store) SetCost(ctx context.Context, callID string, snapshot any) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("kv: encode cost snapshot: %w", err)
	}
	if err := s.client.Set(ctx, costKey(callID), b, 0).Err(); err != nil {
		return fmt.Errorf("kv: set cost snapshot: %w", err)
	}
	return nil
}

// Ping verifies connectivity, used by the health checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
