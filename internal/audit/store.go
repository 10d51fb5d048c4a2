package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dailydrop/rewards/internal/platform/database"
)

const eventColumns = 5

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// DeleteOlderThan removes up to limit events created before cutoff and
// returns how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, db database.Querier, cutoff time.Time, limit int) (int, error) {
	tag, err := db.Exec(ctx, `DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events
			WHERE created_at < $1
			ORDER BY created_at
			LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("deleting expired audit events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(user_id, action, metadata, source, request_id)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*eventColumns)

	for i, e := range events {
		base := i * eventColumns
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		var requestID *string
		if e.RequestID != "" {
			requestID = &e.RequestID
		}

		args = append(args, e.UserID, e.Action, metaJSON, e.Source, requestID)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	UserID int64
	Action *string
	After  *time.Time
	Before *time.Time
	Limit  int
}

// buildListQuery constructs a parameterized SELECT for one user's events.
func buildListQuery(p ListEventsParams) (string, []any) {
	var conditions []string
	var args []any
	argN := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argN))
	args = append(args, p.UserID)
	argN++

	if p.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argN))
		args = append(args, *p.Action)
		argN++
	}
	if p.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argN))
		args = append(args, *p.After)
		argN++
	}
	if p.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argN))
		args = append(args, *p.Before)
		argN++
	}

	sql := fmt.Sprintf(
		`SELECT id, action, metadata, source, created_at
		FROM audit_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`,
		strings.Join(conditions, " AND "), argN,
	)
	args = append(args, p.Limit)

	return sql, args
}
