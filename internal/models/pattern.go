package models

import "time"

// SignaturePattern is a recurring root-cause signature mined from
// investigation history.
type SignaturePattern struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	Signature   string    `json:"signature"`
	Occurrences int       `json:"occurrences"`
	Prevalence  float64   `json:"prevalence"`
	LastSeen    time.Time `json:"last_seen"`
	SampleTitle string    `json:"sample_title,omitempty"`
}
