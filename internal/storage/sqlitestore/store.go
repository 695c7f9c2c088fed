package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wardeck/wardeck/internal/model"
	"github.com/wardeck/wardeck/internal/storage"
)

// ErrDuplicateSegment is returned by RecordSegment when (pane_id, seq)
// already exists and the caller must resync its cursor forward.
var ErrDuplicateSegment = errors.New("duplicate segment sequence")

// Store is the SQLite-backed Storage implementation.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed,
// applies pending migrations, and returns a ready Store. Grounded on
// g960059-agtmux's internal/db.Open: WAL journal, 5s busy timeout,
// foreign keys on, a single open connection since SQLite serializes
// writes anyway.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (s *Store) UpsertPane(ctx context.Context, entry model.PaneEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO panes(pane_id, domain, title, cwd, observed, ignore_reason, first_seen_at, last_seen_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(pane_id) DO UPDATE SET
	domain=excluded.domain,
	title=excluded.title,
	cwd=excluded.cwd,
	observed=excluded.observed,
	ignore_reason=excluded.ignore_reason,
	last_seen_at=excluded.last_seen_at,
	closed_at=NULL
`, entry.PaneID, entry.Domain, entry.Title, entry.CWD, boolToInt(entry.Observation == model.ObservationObserved), entry.IgnoreReason, ts(entry.FirstSeenAt), ts(entry.LastSeenAt))
	if err != nil {
		return fmt.Errorf("upsert pane: %w", err)
	}
	return nil
}

func (s *Store) ClosePane(ctx context.Context, paneID string, closedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE panes SET closed_at = ? WHERE pane_id = ?`, ts(closedAt), paneID)
	if err != nil {
		return fmt.Errorf("close pane: %w", err)
	}
	return nil
}

func (s *Store) GetMaxSeq(ctx context.Context, paneID string) (int64, error) {
	var maxSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM output_segments WHERE pane_id = ?`, paneID).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("get max seq: %w", err)
	}
	if !maxSeq.Valid {
		return -1, nil
	}
	return maxSeq.Int64, nil
}

// RecordSegment inserts a captured segment. On a (pane_id, seq)
// conflict — the cursor and storage disagreeing about the next
// sequence number, per spec.md §7 "Sequence conflict" — it reports the
// actual max seq on file so the caller can resync forward.
func (s *Store) RecordSegment(ctx context.Context, seg model.CapturedSegment) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO output_segments(pane_id, seq, kind, gap_reason, content, captured_at)
VALUES (?, ?, ?, ?, ?, ?)
`, seg.PaneID, seg.Seq, string(seg.Kind), seg.GapReason, seg.Content, ts(seg.CapturedAt))
	if err == nil {
		return seg.Seq, nil
	}
	if !isUniqueConstraint(err) {
		return 0, fmt.Errorf("record segment: %w", err)
	}
	maxSeq, maxErr := s.GetMaxSeq(ctx, seg.PaneID)
	if maxErr != nil {
		return 0, fmt.Errorf("record segment: resolve conflict: %w", maxErr)
	}
	return maxSeq, nil
}

func (s *Store) RecordEvent(ctx context.Context, ev model.StoredEvent) (int64, bool, error) {
	extracted, err := json.Marshal(ev.Detection.Extracted)
	if err != nil {
		return 0, false, fmt.Errorf("marshal extracted: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO events(rule_id, pane_id, event_type, severity, confidence, extracted_json, matched_text, segment_id, detected_at, dedupe_key, handled, handled_by, handled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(dedupe_key) DO NOTHING
`, ev.Detection.RuleID, ev.PaneID, ev.Detection.EventType, string(ev.Detection.Severity), ev.Detection.Confidence,
		string(extracted), ev.Detection.MatchedText, ev.SegmentID, ts(ev.DetectedAt), ev.DedupeKey,
		boolToInt(ev.Handled), ev.HandledBy, nullableTS(ev.HandledAt))
	if err != nil {
		return 0, false, fmt.Errorf("record event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("record event: rows affected: %w", err)
	}
	if n == 0 {
		var id int64
		if err := s.db.QueryRowContext(ctx, `SELECT id FROM events WHERE dedupe_key = ?`, ev.DedupeKey).Scan(&id); err != nil {
			return 0, true, fmt.Errorf("record event: lookup deduped id: %w", err)
		}
		return id, true, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("record event: last insert id: %w", err)
	}
	return id, false, nil
}

func (s *Store) RecordAudit(ctx context.Context, a storage.AuditAction) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_actions(pane_id, action, detail, occurred_at) VALUES (?, ?, ?, ?)`,
		a.PaneID, a.Action, a.Detail, ts(a.OccurredAt))
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

func (s *Store) RecordUsageMetric(ctx context.Context, m storage.UsageMetric) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO usage_metrics(name, value, pane_id, occurred_at) VALUES (?, ?, ?, ?)`,
		m.Name, m.Value, m.PaneID, ts(m.OccurredAt))
	if err != nil {
		return fmt.Errorf("record usage metric: %w", err)
	}
	return nil
}

func (s *Store) RecordNotification(ctx context.Context, n storage.NotificationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO notification_history(channel, subject, body, event_id, sent_at) VALUES (?, ?, ?, ?, ?)`,
		n.Channel, n.Subject, n.Body, n.EventID, ts(n.SentAt))
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

func (s *Store) RecordMaintenance(ctx context.Context, r storage.MaintenanceRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO maintenance_events(event_type, detail, occurred_at) VALUES (?, ?, ?)`,
		r.EventType, r.Detail, ts(r.OccurredAt))
	if err != nil {
		return fmt.Errorf("record maintenance: %w", err)
	}
	return nil
}

func (s *Store) CountSegmentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.countBefore(ctx, "output_segments", "captured_at", cutoff)
}

func (s *Store) DeleteSegmentsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return s.deleteBeforeBatched(ctx, `DELETE FROM output_segments WHERE rowid IN (SELECT rowid FROM output_segments WHERE captured_at < ? LIMIT ?)`, cutoff, batchSize)
}

func (s *Store) CountAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.countBefore(ctx, "audit_actions", "occurred_at", cutoff)
}

func (s *Store) DeleteAuditBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return s.deleteBeforeBatched(ctx, `DELETE FROM audit_actions WHERE id IN (SELECT id FROM audit_actions WHERE occurred_at < ? LIMIT ?)`, cutoff, batchSize)
}

func (s *Store) CountUsageMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.countBefore(ctx, "usage_metrics", "occurred_at", cutoff)
}

func (s *Store) DeleteUsageMetricsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return s.deleteBeforeBatched(ctx, `DELETE FROM usage_metrics WHERE id IN (SELECT id FROM usage_metrics WHERE occurred_at < ? LIMIT ?)`, cutoff, batchSize)
}

func (s *Store) CountNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.countBefore(ctx, "notification_history", "sent_at", cutoff)
}

func (s *Store) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return s.deleteBeforeBatched(ctx, `DELETE FROM notification_history WHERE id IN (SELECT id FROM notification_history WHERE sent_at < ? LIMIT ?)`, cutoff, batchSize)
}

func (s *Store) countBefore(ctx context.Context, table, column string, cutoff time.Time) (int64, error) {
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s < ?`, table, column)
	if err := s.db.QueryRowContext(ctx, q, ts(cutoff)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) deleteBeforeBatched(ctx context.Context, deleteSQL string, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		res, err := s.db.ExecContext(ctx, deleteSQL, ts(cutoff), batchSize)
		if err != nil {
			return total, fmt.Errorf("delete batch: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete batch rows affected: %w", err)
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

// tierWhere builds the WHERE clause and args for an events-table query
// scoped to a retention tier's predicate (severities, event types,
// handled flag) plus the detected_at cutoff.
func tierWhere(cutoff time.Time, severities, eventTypes []string, handled *bool) (string, []any) {
	clauses := []string{"detected_at < ?"}
	args := []any{ts(cutoff)}

	if len(severities) > 0 {
		placeholders := make([]string, len(severities))
		for i, sev := range severities {
			placeholders[i] = "?"
			args = append(args, sev)
		}
		clauses = append(clauses, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(eventTypes) > 0 {
		placeholders := make([]string, len(eventTypes))
		for i, et := range eventTypes {
			placeholders[i] = "?"
			args = append(args, et)
		}
		clauses = append(clauses, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if handled != nil {
		clauses = append(clauses, "handled = ?")
		args = append(args, boolToInt(*handled))
	}
	return strings.Join(clauses, " AND "), args
}

func (s *Store) CountEventsByTier(ctx context.Context, cutoff time.Time, severities, eventTypes []string, handled *bool) (int64, error) {
	where, args := tierWhere(cutoff, severities, eventTypes, handled)
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM events WHERE %s`, where)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events by tier: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteEventsByTier(ctx context.Context, cutoff time.Time, severities, eventTypes []string, handled *bool, batchSize int) (int64, error) {
	where, args := tierWhere(cutoff, severities, eventTypes, handled)
	selectInner := fmt.Sprintf(`SELECT id FROM events WHERE %s LIMIT ?`, where)
	deleteSQL := fmt.Sprintf(`DELETE FROM events WHERE id IN (%s)`, selectInner)

	var total int64
	for {
		callArgs := append(append([]any{}, args...), batchSize)
		res, err := s.db.ExecContext(ctx, deleteSQL, callArgs...)
		if err != nil {
			return total, fmt.Errorf("delete events by tier: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete events by tier rows affected: %w", err)
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

// tierPredicate builds just a tier's match clause (severities/event
// types/handled), with no cutoff term, for use inside a negated OR.
// An empty tier (no predicate fields set) matches every event, same
// as tierWhere's treatment of nil/empty filters.
func tierPredicate(t model.RetentionTier) (string, []any) {
	var clauses []string
	var args []any
	if len(t.Severities) > 0 {
		placeholders := make([]string, len(t.Severities))
		for i, sev := range t.Severities {
			placeholders[i] = "?"
			args = append(args, sev)
		}
		clauses = append(clauses, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(t.EventTypes) > 0 {
		placeholders := make([]string, len(t.EventTypes))
		for i, et := range t.EventTypes {
			placeholders[i] = "?"
			args = append(args, et)
		}
		clauses = append(clauses, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if t.Handled != nil {
		clauses = append(clauses, "handled = ?")
		args = append(args, boolToInt(*t.Handled))
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// unmatchedWhere builds the WHERE clause for events older than cutoff
// that match none of tiers: the global-retention catch-all.
func unmatchedWhere(cutoff time.Time, tiers []model.RetentionTier) (string, []any) {
	clauses := []string{"detected_at < ?"}
	args := []any{ts(cutoff)}
	for _, t := range tiers {
		pred, predArgs := tierPredicate(t)
		clauses = append(clauses, fmt.Sprintf("NOT (%s)", pred))
		args = append(args, predArgs...)
	}
	return strings.Join(clauses, " AND "), args
}

func (s *Store) CountEventsUnmatchedBefore(ctx context.Context, cutoff time.Time, tiers []model.RetentionTier) (int64, error) {
	where, args := unmatchedWhere(cutoff, tiers)
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM events WHERE %s`, where)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unmatched events: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteEventsUnmatchedBefore(ctx context.Context, cutoff time.Time, tiers []model.RetentionTier, batchSize int) (int64, error) {
	where, args := unmatchedWhere(cutoff, tiers)
	selectInner := fmt.Sprintf(`SELECT id FROM events WHERE %s LIMIT ?`, where)
	deleteSQL := fmt.Sprintf(`DELETE FROM events WHERE id IN (%s)`, selectInner)

	var total int64
	for {
		callArgs := append(append([]any{}, args...), batchSize)
		res, err := s.db.ExecContext(ctx, deleteSQL, callArgs...)
		if err != nil {
			return total, fmt.Errorf("delete unmatched events: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete unmatched events rows affected: %w", err)
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

var _ storage.Storage = (*Store)(nil)
