package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Recorder is an in-memory LedgerPoster used in tests and dry runs. It
// honors the idempotency contract: a replayed key returns the original
// posting id without creating a second entry.
type Recorder struct {
	mu       sync.Mutex
	byKey    map[string]string
	Requests []service.PostRequest // every Post call, including replays
	FailWith error                 // when set, Post returns this error
	nextID   int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{byKey: make(map[string]string)}
}

// Post records the request and returns a stable id per idempotency key.
func (r *Recorder) Post(_ context.Context, req service.PostRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Requests = append(r.Requests, req)
	if r.FailWith != nil {
		return "", r.FailWith
	}

	if id, ok := r.byKey[req.IdempotencyKey]; ok {
		return id, nil
	}
	r.nextID++
	id := fmt.Sprintf("posted-%d", r.nextID)
	r.byKey[req.IdempotencyKey] = id
	return id, nil
}

// PostedEntries lists every distinct posting.
func (r *Recorder) PostedEntries(_ context.Context) ([]service.PostedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]service.PostedEntry, 0, len(r.byKey))
	for key, id := range r.byKey {
		entries = append(entries, service.PostedEntry{IdempotencyKey: key, PostedID: id})
	}
	return entries, nil
}

// PostCount returns the number of distinct postings created.
func (r *Recorder) PostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

var _ service.LedgerPoster = (*Recorder)(nil)
