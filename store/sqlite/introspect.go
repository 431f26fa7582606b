/*
introspect.go - Schema introspection and startup verification

PURPOSE:
  The engines assume the approvals and payments tables exist with the
  columns they read and write. Rather than discovering a drifted schema
  via a failed UPDATE mid-decision, the server verifies the layout once
  at startup, and an admin endpoint exposes the live layout for
  debugging deployed databases.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Column describes one column of a table as reported by the database.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key"`
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableExists reports whether the named table exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %q: %w", name, err)
	}
	return count > 0, nil
}

// TableColumns returns the column layout of the named table.
func (s *Store) TableColumns(ctx context.Context, name string) ([]Column, error) {
	if !identifierRe.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// PRAGMA arguments cannot be bound; name is validated above.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %q: %w", name, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid      int
			c        Column
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &c.NotNull, &dflt, &pk); err != nil {
			return nil, err
		}
		c.Default = dflt.String
		c.PrimaryKey = pk > 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// requiredSchema is the minimum layout the engines depend on.
var requiredSchema = map[string][]string{
	"approvals": {
		"id", "entity_type", "entity_id", "requester_id", "status",
		"request_date", "action_date", "actioned_by", "comments", "amount",
	},
	"payments": {
		"id", "amount", "accounting_type", "gst_amount",
	},
	"reconciliation_runs": {
		"id", "status", "scanned_corrupt", "fixed",
	},
}

// VerifySchema checks that every table and column the engines depend on is
// present. Intended for startup, after migrations have been applied.
func (s *Store) VerifySchema(ctx context.Context) error {
	var problems []string

	for table, columns := range requiredSchema {
		exists, err := s.TableExists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			problems = append(problems, fmt.Sprintf("missing table %s", table))
			continue
		}

		cols, err := s.TableColumns(ctx, table)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(cols))
		for _, c := range cols {
			have[c.Name] = true
		}
		for _, want := range columns {
			if !have[want] {
				problems = append(problems, fmt.Sprintf("missing column %s.%s", table, want))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("schema verification failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
