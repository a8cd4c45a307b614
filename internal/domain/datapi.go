package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a Data Stores retrieval job.
// The string values are sent verbatim as the upstream status filter.
type JobStatus string

const (
	JobStatusAccepted   JobStatus = "accepted"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccessful JobStatus = "successful"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatuses returns every valid JobStatus in lifecycle order.
func JobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusAccepted,
		JobStatusRunning,
		JobStatusSuccessful,
		JobStatusFailed,
	}
}

// String returns the wire form of the status.
func (s JobStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the four known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusAccepted, JobStatusRunning, JobStatusSuccessful, JobStatusFailed:
		return true
	default:
		return false
	}
}

// ParseJobStatus converts a string to JobStatus. Matching is exact and
// case-sensitive.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid job status %q: must be one of accepted, running, successful, failed", s)
	}
	return status, nil
}

// Success messages returned by the tools.
const (
	DownloadSuccessMessage = "Successfully downloaded job results."
	SubmitSuccessMessage   = "Successfully submitted job request."
)

// Message is a generic acknowledgement returned by tools that have no
// other payload.
type Message struct {
	Message string `json:"message"`
}

// CollectionInfo describes a catalogue collection.
type CollectionInfo struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	PublishedAt   time.Time  `json:"published_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	BeginDatetime time.Time  `json:"begin_datetime"`
	EndDatetime   time.Time  `json:"end_datetime"`
	BBox          [4]float64 `json:"bbox"` // west, south, east, north
}

// CollectionRecord holds the raw fields of an upstream collection before
// validation. Nil pointers mark fields the upstream did not provide.
type CollectionRecord struct {
	ID            *string
	Title         *string
	Description   *string
	PublishedAt   *string
	UpdatedAt     *string
	BeginDatetime *string
	EndDatetime   *string
	BBox          []interface{}
}

// ErrInvalidResponseShape is matched by every ShapeError.
var ErrInvalidResponseShape = errors.New("invalid response shape")

// ShapeError reports an upstream record that does not fit the declared
// output shape.
type ShapeError struct {
	Field  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid response shape: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidResponseShape) hold for any ShapeError.
func (e *ShapeError) Is(target error) bool {
	return target == ErrInvalidResponseShape
}

// timestampLayouts are tried in order when parsing upstream timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses an ISO 8601 timestamp in any of timestampLayouts.
// Values without an offset are taken as UTC.
func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date-time", value)
}

// NewCollectionInfo validates an upstream record and maps it 1:1 onto
// CollectionInfo. Every field is required.
func NewCollectionInfo(record CollectionRecord) (*CollectionInfo, error) {
	info := &CollectionInfo{}

	texts := []struct {
		field string
		value *string
		dest  *string
	}{
		{"id", record.ID, &info.ID},
		{"title", record.Title, &info.Title},
		{"description", record.Description, &info.Description},
	}
	for _, f := range texts {
		if f.value == nil {
			return nil, &ShapeError{Field: f.field, Reason: "is missing"}
		}
		*f.dest = *f.value
	}

	timestamps := []struct {
		field string
		value *string
		dest  *time.Time
	}{
		{"published_at", record.PublishedAt, &info.PublishedAt},
		{"updated_at", record.UpdatedAt, &info.UpdatedAt},
		{"begin_datetime", record.BeginDatetime, &info.BeginDatetime},
		{"end_datetime", record.EndDatetime, &info.EndDatetime},
	}
	for _, f := range timestamps {
		if f.value == nil {
			return nil, &ShapeError{Field: f.field, Reason: "is missing"}
		}
		t, err := parseTimestamp(*f.value)
		if err != nil {
			return nil, &ShapeError{Field: f.field, Reason: err.Error()}
		}
		*f.dest = t
	}

	if record.BBox == nil {
		return nil, &ShapeError{Field: "bbox", Reason: "is missing"}
	}
	if len(record.BBox) != 4 {
		return nil, &ShapeError{Field: "bbox", Reason: fmt.Sprintf("has %d elements, want 4", len(record.BBox))}
	}
	for i, v := range record.BBox {
		f, ok := toFloat(v)
		if !ok {
			return nil, &ShapeError{Field: "bbox", Reason: fmt.Sprintf("element %d is not a number", i)}
		}
		info.BBox[i] = f
	}

	return info, nil
}

// toFloat accepts the numeric types produced by encoding/json and by Go
// callers.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// DownloadResponse acknowledges a submitted retrieval job.
type DownloadResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}
