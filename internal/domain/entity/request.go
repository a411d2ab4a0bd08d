package entity

import (
	"net/url"
	"strings"
	"time"
)

// Request is what the outer CLI/API layer hands to the engine for one account.
type Request struct {
	Credentials Credentials
	AccountKey  string
	TargetURL   string
	// Query runs a live search instead of reading TargetURL. TargetURL wins
	// when both are set.
	Query       string
	MaxRecords  int
}

type RunReport struct {
	AccountKey string
	Result     AuthAttemptResult
	Records    []ExtractedRecord
	Attempts   int
	Trail      []DiagnosticsEntry
	Duration   time.Duration
}

// SiteProfile holds everything about the target application that is expected
// to drift: URLs, field locators and the record schema.
type SiteProfile struct {
	Name         string         `json:"name"`
	LoginURL     string         `json:"loginUrl"`
	HomeURL      string         `json:"homeUrl"`
	// SearchURL is a template with one %s for the escaped query.
	SearchURL    string         `json:"searchUrl,omitempty"`
	Locators     []FieldLocator `json:"locators"`
	RecordSchema RecordSchema   `json:"recordSchema"`
}

// SearchTarget fills the search template with the escaped query.
func (p SiteProfile) SearchTarget(query string) (string, error) {
	if p.SearchURL == "" {
		return "", ErrSearchUnsupported
	}
	return strings.Replace(p.SearchURL, "%s", url.QueryEscape(query), 1), nil
}

func (p SiteProfile) Locator(field FieldName) (FieldLocator, bool) {
	for _, l := range p.Locators {
		if l.Field == field {
			return l, true
		}
	}
	return FieldLocator{}, false
}
