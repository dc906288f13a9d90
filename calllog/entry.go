package calllog

import (
	"encoding/json"
	"time"
)

// Status is the outcome recorded for a call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Index names a secondary lookup index of a Store.
type Index string

const (
	IndexPage Index = "page"
	IndexURL  Index = "url"
)

// Entry is the stored state of one (url, method) endpoint.
type Entry struct {
	// ID is assigned by the Store on insert and never changes afterwards.
	ID string `json:"id" yaml:"id"`

	URL    string `json:"url" yaml:"url"`
	Method string `json:"method" yaml:"method"`

	Status Status `json:"status" yaml:"status"`

	// Response is a JSON snapshot of the response payload. Non-JSON payloads
	// are stored as a JSON string.
	Response json.RawMessage `json:"response,omitempty" yaml:"-"`

	DurationMs   int64  `json:"durationMs" yaml:"durationMs"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`

	// Page and Agent describe where the first call came from.
	Page  string `json:"page" yaml:"page"`
	Agent string `json:"agent" yaml:"agent"`

	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Response != nil {
		c.Response = append(json.RawMessage(nil), e.Response...)
	}
	return &c
}

// ResponseText renders the response snapshot for display.
func (e *Entry) ResponseText() string {
	return string(e.Response)
}

// Snapshot converts a raw response body into the JSON form kept in
// Entry.Response. Valid JSON is kept verbatim, anything else is quoted.
func Snapshot(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}

// indexValue returns the value e holds for idx.
func (e *Entry) indexValue(idx Index) string {
	switch idx {
	case IndexPage:
		return e.Page
	case IndexURL:
		return e.URL
	default:
		return ""
	}
}

// applyOutcome copies the mutable fields of src into e. Identity, page, url
// and agent are left untouched.
func (e *Entry) applyOutcome(src *Entry) {
	e.Status = src.Status
	e.Response = src.Response
	e.DurationMs = src.DurationMs
	e.ErrorMessage = src.ErrorMessage
	e.Timestamp = src.Timestamp
}
