// Package events defines the JSON messages exchanged on the alert-created,
// user-alert and dead-letter topics.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// SchemaVersion is stamped on every bus message this service produces.
const SchemaVersion = 1

// AlertCreated announces a persisted alert. Keyed by alert id.
// Department carries the optional audience hint given at ingestion.
type AlertCreated struct {
	AlertID       string           `json:"alert_id"`
	Kind          alert.Kind       `json:"kind"`
	AppName       string           `json:"app_name"`
	Department    alert.Department `json:"department,omitempty"`
	SchemaVersion int              `json:"schema_version"`
}

// NewAlertCreated builds the event for a persisted record.
func NewAlertCreated(rec *alert.Record) *AlertCreated {
	return &AlertCreated{
		AlertID:       rec.ID,
		Kind:          rec.Kind,
		AppName:       rec.AppName,
		SchemaVersion: SchemaVersion,
	}
}

// Key returns the partition key.
func (e *AlertCreated) Key() string { return e.AlertID }

// UserAlert asks the delivery consumer to record and push one alert to one recipient.
// Keyed by recipient id so a recipient's alerts stay on one partition.
type UserAlert struct {
	AlertID       string `json:"alert_id"`
	RecipientID   string `json:"recipient_id"`
	SchemaVersion int    `json:"schema_version"`
}

// NewUserAlert builds the per-recipient event.
func NewUserAlert(alertID, recipientID string) *UserAlert {
	return &UserAlert{
		AlertID:       alertID,
		RecipientID:   recipientID,
		SchemaVersion: SchemaVersion,
	}
}

// Key returns the partition key.
func (e *UserAlert) Key() string { return e.RecipientID }

// DecodeAlertCreated parses and validates an AlertCreated payload.
func DecodeAlertCreated(data []byte) (*AlertCreated, error) {
	var e AlertCreated
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: decode alert-created: %v", alert.ErrMalformedInput, err)
	}
	if e.AlertID == "" {
		return nil, fmt.Errorf("%w: alert-created without alert_id", alert.ErrMalformedInput)
	}
	return &e, nil
}

// DecodeUserAlert parses and validates a UserAlert payload.
func DecodeUserAlert(data []byte) (*UserAlert, error) {
	var e UserAlert
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: decode user-alert: %v", alert.ErrMalformedInput, err)
	}
	if e.AlertID == "" || e.RecipientID == "" {
		return nil, fmt.Errorf("%w: user-alert requires alert_id and recipient_id", alert.ErrMalformedInput)
	}
	return &e, nil
}

// DeadLetterEnvelope wraps a message that could not be processed. Write-once.
type DeadLetterEnvelope struct {
	OriginalMessage   json.RawMessage `json:"originalMessage"`
	ErrorMessage      string          `json:"errorMessage"`
	ErrorClass        string          `json:"errorClass"`
	RetryCount        int             `json:"retryCount"`
	FailureTimestamp  time.Time       `json:"failureTimestamp"`
	OriginalTopic     string          `json:"originalTopic"`
	OriginalPartition int             `json:"originalPartition"`
	OriginalOffset    int64           `json:"originalOffset"`
	OriginalKey       string          `json:"originalKey,omitempty"`
}

// NewDeadLetterEnvelope builds an envelope for value. Values that are not valid
// JSON are embedded as a JSON string so the envelope always encodes.
func NewDeadLetterEnvelope(value []byte, cause error, retryCount int, topic string, partition int, offset int64, at time.Time) *DeadLetterEnvelope {
	env := &DeadLetterEnvelope{
		ErrorClass:        alert.Class(cause),
		RetryCount:        retryCount,
		FailureTimestamp:  at.UTC(),
		OriginalTopic:     topic,
		OriginalPartition: partition,
		OriginalOffset:    offset,
	}
	if cause != nil {
		env.ErrorMessage = cause.Error()
	}
	if json.Valid(value) {
		env.OriginalMessage = json.RawMessage(value)
	} else {
		quoted, _ := json.Marshal(string(value))
		env.OriginalMessage = quoted
	}
	return env
}
