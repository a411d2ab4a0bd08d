package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type ExtractedRecord struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ContentKey is the fallback dedup key used when a node carries no stable identity.
func ContentKey(author, text string, ts *time.Time) string {
	stamp := "unknown"
	if ts != nil {
		stamp = ts.UTC().Format(time.RFC3339Nano)
	}
	sum := sha256.Sum256([]byte(author + "\x00" + text + "\x00" + stamp))
	return "sha256:" + hex.EncodeToString(sum[:16])
}

// RecordSchema describes how record nodes are found and parsed on a page.
// IDSelector is resolved inside the node (empty means the node itself) and
// IDAttribute read from it; IDPattern optionally narrows the value to its first
// capture group.
type RecordSchema struct {
	Node           string `json:"node"`
	IDSelector     string `json:"idSelector,omitempty"`
	IDAttribute    string `json:"idAttribute,omitempty"`
	IDPattern      string `json:"idPattern,omitempty"`
	Author         string `json:"author"`
	AuthorFirstRun bool   `json:"authorFirstRun,omitempty"`
	Text           string `json:"text"`
	Time           string `json:"time,omitempty"`
	TimeAttribute  string `json:"timeAttribute,omitempty"`
}
