package models

import "time"

// Checkpoint records where a paginated fetch pass left off and whether
// an invocation currently holds the advisory lock. The lock is
// cooperative only; nothing at the storage layer enforces it.
type Checkpoint struct {
	IsInProgress                bool
	ResumeToken                 string
	LastError                   string
	LastFetchedAt               time.Time
	LastSuccessfulCompleteFetch time.Time
}

// Doc renders the checkpoint as a store document. LastError is always
// written so a clean run clears a previously recorded failure.
func (c *Checkpoint) Doc() map[string]any {
	doc := map[string]any{
		"isInProgress": c.IsInProgress,
		"resumeToken":  c.ResumeToken,
		"lastError":    c.LastError,
	}
	if !c.LastFetchedAt.IsZero() {
		doc["lastFetchedAt"] = c.LastFetchedAt
	}
	if !c.LastSuccessfulCompleteFetch.IsZero() {
		doc["lastSuccessfulCompleteFetch"] = c.LastSuccessfulCompleteFetch
	}
	return doc
}

// CheckpointFromDoc reconstructs a checkpoint from its stored document.
// Missing fields fall back to zero values so a partially written
// document still yields a usable checkpoint.
func CheckpointFromDoc(doc map[string]any) *Checkpoint {
	c := &Checkpoint{
		IsInProgress: docBool(doc, "isInProgress"),
		ResumeToken:  docString(doc, "resumeToken"),
		LastError:    docString(doc, "lastError"),
	}
	if ts, ok := docTime(doc, "lastFetchedAt"); ok {
		c.LastFetchedAt = ts
	}
	if ts, ok := docTime(doc, "lastSuccessfulCompleteFetch"); ok {
		c.LastSuccessfulCompleteFetch = ts
	}
	return c
}
