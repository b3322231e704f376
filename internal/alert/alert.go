// Package alert defines the canonical alert record, per-recipient delivery state
// and the error taxonomy shared by every component of the distribution engine.
package alert

import (
	"strings"
	"time"
)

// Kind identifies where an alert originated.
type Kind string

const (
	KindDashboard      Kind = "dashboard"
	KindSearchPlatform Kind = "search-platform"
	KindCI             Kind = "ci"
	KindCD             Kind = "cd"
	KindIssue          Kind = "issue"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDashboard, KindSearchPlatform, KindCI, KindCD, KindIssue:
		return true
	}
	return false
}

// Record is the canonical alert produced by the normalizer. It is immutable once persisted.
type Record struct {
	ID        string    `json:"alert_id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	AppName   string    `json:"app_name"`
	OriginAt  time.Time `json:"origin_at"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryStatus is the read state of one alert for one recipient.
// At most one row exists per (AlertID, RecipientID).
type DeliveryStatus struct {
	ID          int64     `json:"delivery_id"`
	AlertID     string    `json:"alert_id"`
	RecipientID string    `json:"recipient_id"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Delivery joins a DeliveryStatus with the alert it refers to.
type Delivery struct {
	DeliveryStatus
	Alert Record `json:"alert"`
}

// Department is the directory tag used for audience resolution.
type Department string

const (
	DepartmentOperations  Department = "operations"
	DepartmentExternal    Department = "external"
	DepartmentCoreBanking Department = "core-banking"
	DepartmentChannel     Department = "channel"
)

// Departments lists every department in a stable order.
var Departments = []Department{
	DepartmentOperations,
	DepartmentExternal,
	DepartmentCoreBanking,
	DepartmentChannel,
}

// ParseDepartment normalizes a department tag. The empty string parses to the empty department.
func ParseDepartment(s string) (Department, bool) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return "", true
	}
	for _, known := range Departments {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// Recipient is a directory entry. The directory is owned elsewhere and read-only here.
type Recipient struct {
	ID         string     `json:"recipient_id" yaml:"id"`
	Department Department `json:"department" yaml:"department"`
	Email      string     `json:"email,omitempty" yaml:"email"`
}
