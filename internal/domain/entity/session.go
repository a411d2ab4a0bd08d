package entity

import "time"

const SessionStateVersion = 1

type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"sameSite,omitempty"`
	Priority string  `json:"priority,omitempty"`
}

type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type OriginStorage struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// SessionState is the serialized cookie and storage bundle of a browsing context.
// It is never trusted until a liveness probe against a restored context passes.
type SessionState struct {
	Version    int             `json:"version"`
	AccountKey string          `json:"accountKey"`
	SavedAt    time.Time       `json:"savedAt"`
	UserAgent  string          `json:"userAgent,omitempty"`
	Cookies    []Cookie        `json:"cookies"`
	Origins    []OriginStorage `json:"origins"`
}

func (s *SessionState) Empty() bool {
	return s == nil || (len(s.Cookies) == 0 && len(s.Origins) == 0)
}
