// Package audience resolves which recipients should receive an alert.
//
// The rule is a fixed partition over four departments: operations and external
// always qualify, core-banking qualifies only for applications whose name
// contains the core-banking marker, and channel qualifies only for those that don't.
package audience

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// DefaultCoreBankingMarker is matched case-insensitively against application names.
const DefaultCoreBankingMarker = "core"

// Directory lists recipient directory entries.
type Directory interface {
	ListRecipients(ctx context.Context) ([]alert.Recipient, error)
}

// Resolver computes recipient sets from a directory snapshot.
type Resolver struct {
	directory Directory
	marker    string
}

// NewResolver creates a resolver. An empty marker selects DefaultCoreBankingMarker.
func NewResolver(directory Directory, marker string) *Resolver {
	if marker == "" {
		marker = DefaultCoreBankingMarker
	}
	return &Resolver{
		directory: directory,
		marker:    strings.ToLower(marker),
	}
}

// Qualifies reports whether a department receives alerts for appName.
func Qualifies(dept alert.Department, appName, marker string) bool {
	isCore := strings.Contains(strings.ToLower(appName), strings.ToLower(marker))
	switch dept {
	case alert.DepartmentOperations, alert.DepartmentExternal:
		return true
	case alert.DepartmentCoreBanking:
		return isCore
	case alert.DepartmentChannel:
		return !isCore
	}
	return false
}

// Resolve returns the recipients for appName, sorted by id. A non-empty hint
// restricts the result to that department.
func (r *Resolver) Resolve(ctx context.Context, appName string, hint alert.Department) ([]alert.Recipient, error) {
	entries, err := r.directory.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	recipients := make([]alert.Recipient, 0, len(entries))
	for _, e := range entries {
		if hint != "" && e.Department != hint {
			continue
		}
		if !Qualifies(e.Department, appName, r.marker) {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		recipients = append(recipients, e)
	}

	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].ID < recipients[j].ID
	})
	return recipients, nil
}

// Lookup returns the directory entry for one recipient.
func (r *Resolver) Lookup(ctx context.Context, recipientID string) (*alert.Recipient, error) {
	entries, err := r.directory.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	for i := range entries {
		if entries[i].ID == recipientID {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("recipient %s: %w", recipientID, alert.ErrNotFound)
}
