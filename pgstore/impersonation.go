package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/venn-labs/platauth"
)

const pgUniqueViolation = "23505"

// Create inserts an active session. The partial unique index on the
// (actor, tenant, target) triple turns a concurrent duplicate into
// [platauth.ErrConflict].
func (s *Store) Create(ctx context.Context, sess *platauth.ImpersonationSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO impersonation_sessions
			(id, platform_account_id, tenant_id, target_user_id, target_user_email, reason, active, started_at, expires_at, ended_by, end_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', '')`,
		sess.ID,
		sess.PlatformAccountID,
		sess.TenantID,
		sess.TargetUserID,
		sess.TargetUserEmail,
		sess.Reason,
		sess.Active,
		sess.StartedAt,
		sess.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return platauth.ErrConflict
		}
		return fmt.Errorf("insert impersonation session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (platauth.ImpersonationSession, error) {
	var sess platauth.ImpersonationSession
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, platform_account_id, tenant_id, target_user_id, target_user_email, reason, active, started_at, expires_at, ended_at, ended_by, end_reason
		FROM impersonation_sessions WHERE id = $1`, id).Scan(
		&sess.ID,
		&sess.PlatformAccountID,
		&sess.TenantID,
		&sess.TargetUserID,
		&sess.TargetUserEmail,
		&sess.Reason,
		&sess.Active,
		&sess.StartedAt,
		&sess.ExpiresAt,
		&endedAt,
		&sess.EndedBy,
		&sess.EndReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return platauth.ImpersonationSession{}, platauth.ErrNotFound
	}
	if err != nil {
		return platauth.ImpersonationSession{}, fmt.Errorf("select impersonation session: %w", err)
	}
	if endedAt.Valid {
		sess.EndedAt = endedAt.Time
	}
	return sess, nil
}

// End deactivates the session if it is still active, recording who ended
// it and why. Ending an already-ended session returns [platauth.ErrConflict];
// a session that does not exist at all returns [platauth.ErrNotFound].
func (s *Store) End(ctx context.Context, id, endedBy, reason string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE impersonation_sessions
		SET active = FALSE, ended_at = $2, ended_by = $3, end_reason = $4
		WHERE id = $1 AND active`,
		id, at, endedBy, reason,
	)
	if err != nil {
		return fmt.Errorf("end impersonation session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("end impersonation session: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM impersonation_sessions WHERE id = $1)`, id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("end impersonation session: %w", err)
		}
		if exists {
			return platauth.ErrConflict
		}
		return platauth.ErrNotFound
	}
	return nil
}

// AppendAction records an action against a still-active session. The
// conditional insert makes logging against an ended or unknown session a
// silent no-op, so a late in-flight request cannot fail its caller.
func (s *Store) AppendAction(ctx context.Context, impersonationID, action, endpoint, method string, metadata map[string]string, at time.Time) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode action metadata: %w", err)
	}
	if metadata == nil {
		encoded = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO impersonation_actions (impersonation_id, action, endpoint, method, metadata, occurred_at)
		SELECT id, $2, $3, $4, $5, $6 FROM impersonation_sessions WHERE id = $1 AND active`,
		impersonationID, action, endpoint, method, encoded, at,
	)
	if err != nil {
		return fmt.Errorf("insert impersonation action: %w", err)
	}
	return nil
}

func (s *Store) CountActions(ctx context.Context, impersonationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM impersonation_actions WHERE impersonation_id = $1`,
		impersonationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count impersonation actions: %w", err)
	}
	return count, nil
}

// SweepExpired force-ends every active session past its expiry in a single
// statement and returns the swept sessions for per-session audit entries.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) ([]platauth.ImpersonationSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE impersonation_sessions
		SET active = FALSE, ended_at = $1, ended_by = 'system', end_reason = 'timed_out'
		WHERE active AND expires_at <= $1
		RETURNING id, platform_account_id, tenant_id, target_user_id, target_user_email, reason, active, started_at, expires_at, ended_at, ended_by, end_reason`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("sweep impersonation sessions: %w", err)
	}
	defer rows.Close()
	return scanImpersonationRows(rows)
}

func (s *Store) ListActive(ctx context.Context) ([]platauth.ImpersonationSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform_account_id, tenant_id, target_user_id, target_user_email, reason, active, started_at, expires_at, ended_at, ended_by, end_reason
		FROM impersonation_sessions WHERE active ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active impersonation sessions: %w", err)
	}
	defer rows.Close()
	return scanImpersonationRows(rows)
}

func (s *Store) ListHistory(ctx context.Context, actorID string, limit int) ([]platauth.ImpersonationSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform_account_id, tenant_id, target_user_id, target_user_email, reason, active, started_at, expires_at, ended_at, ended_by, end_reason
		FROM impersonation_sessions
		WHERE platform_account_id = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		actorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list impersonation history: %w", err)
	}
	defer rows.Close()
	return scanImpersonationRows(rows)
}

func scanImpersonationRows(rows *sql.Rows) ([]platauth.ImpersonationSession, error) {
	var out []platauth.ImpersonationSession
	for rows.Next() {
		var sess platauth.ImpersonationSession
		var endedAt sql.NullTime
		if err := rows.Scan(
			&sess.ID,
			&sess.PlatformAccountID,
			&sess.TenantID,
			&sess.TargetUserID,
			&sess.TargetUserEmail,
			&sess.Reason,
			&sess.Active,
			&sess.StartedAt,
			&sess.ExpiresAt,
			&endedAt,
			&sess.EndedBy,
			&sess.EndReason,
		); err != nil {
			return nil, fmt.Errorf("scan impersonation row: %w", err)
		}
		if endedAt.Valid {
			sess.EndedAt = endedAt.Time
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate impersonation rows: %w", err)
	}
	return out, nil
}

var _ platauth.ImpersonationStore = (*Store)(nil)
