package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/venn-labs/platauth"
)

//go:embed schema.sql
var schemaSQL string

// Append writes one ledger row. The entry ID is assigned here when the
// caller left it empty; ULIDs keep the primary key time-sortable.
func (s *Store) Append(ctx context.Context, entry *platauth.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	if entry.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(id, ts, action, actor_id, target_tenant_id, target_user_id, session_id, ip, success, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID,
		entry.Timestamp,
		entry.Action,
		entry.ActorID,
		entry.TargetTenantID,
		entry.TargetUserID,
		entry.SessionID,
		entry.IP,
		entry.Success,
		entry.Error,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

// Query pages through the ledger newest first and reports the total match
// count alongside the page.
func (s *Store) Query(ctx context.Context, filter platauth.AuditFilter) ([]platauth.AuditEntry, int, error) {
	where, args := buildAuditWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit rows: %w", err)
	}

	query := `SELECT id, ts, action, actor_id, target_tenant_id, target_user_id, session_id, ip, success, error, metadata
		FROM audit_log` + where + " ORDER BY ts DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + strconv.Itoa(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit rows: %w", err)
	}
	defer rows.Close()

	var entries []platauth.AuditEntry
	for rows.Next() {
		var entry platauth.AuditEntry
		var metadata []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Action,
			&entry.ActorID,
			&entry.TargetTenantID,
			&entry.TargetUserID,
			&entry.SessionID,
			&entry.IP,
			&entry.Success,
			&entry.Error,
			&metadata,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, total, nil
}

func buildAuditWhere(filter platauth.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.ActorID != "" {
		conds = append(conds, "actor_id = "+arg(filter.ActorID))
	}
	if filter.Action != "" {
		conds = append(conds, "action = "+arg(filter.Action))
	}
	if filter.TargetTenantID != "" {
		conds = append(conds, "target_tenant_id = "+arg(filter.TargetTenantID))
	}
	if filter.TargetUserID != "" {
		conds = append(conds, "target_user_id = "+arg(filter.TargetUserID))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "ts >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "ts < "+arg(filter.To))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var _ platauth.AuditStore = (*Store)(nil)
