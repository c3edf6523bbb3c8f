// Package sqlite implements domain.RecordStore on a single-file SQLite
// database for the command line tool and device-local use.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/observability"
)

//go:embed schema.sql
var schema string

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const activityColumns = `activity_id, title, description, expected_minutes, energy, social_context, category, tags, repeatable, source, moderation_status`

// Store is a SQLite-backed record store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindActivities implements domain.RecordStore.
func (s *Store) FindActivities(ctx context.Context, query domain.ActivityQuery) ([]domain.Activity, error) {
	args := []any{query.MinMinutes, query.MaxMinutes, string(query.Energy), string(query.Context)}
	stmt := `SELECT ` + activityColumns + ` FROM activities
        WHERE expected_minutes BETWEEN ? AND ? AND energy = ? AND social_context = ?`
	if len(query.Exclude) > 0 {
		marks := make([]string, 0, len(query.Exclude))
		for id := range query.Exclude {
			marks = append(marks, "?")
			args = append(args, id.String())
		}
		stmt += ` AND activity_id NOT IN (` + strings.Join(marks, ",") + `)`
	}
	stmt += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetActivity implements domain.RecordStore.
func (s *Store) GetActivity(ctx context.Context, id uuid.UUID) (*domain.Activity, error) {
	return s.oneActivity(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = ?`, id.String())
}

// FindActivityByTitle implements domain.RecordStore.
func (s *Store) FindActivityByTitle(ctx context.Context, title string) (*domain.Activity, error) {
	return s.oneActivity(ctx, `SELECT `+activityColumns+` FROM activities WHERE lower(title) = lower(?) LIMIT 1`, title)
}

func (s *Store) oneActivity(ctx context.Context, stmt string, arg any) (*domain.Activity, error) {
	a, err := scanActivity(s.db.QueryRowContext(ctx, stmt, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

const (
	favoriteColumns = `favorite_id, user_id, activity_id, created_at, updated_at`
	historyColumns  = `entry_id, user_id, activity_id, completed_at, updated_at, context_snapshot`
)

// ListFavorites implements domain.RecordStore.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+favoriteColumns+`
        FROM favorites WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Favorite, 0)
	for rows.Next() {
		f, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFavorite implements domain.RecordStore.
func (s *Store) GetFavorite(ctx context.Context, id uuid.UUID) (*domain.Favorite, error) {
	f, err := scanFavorite(s.db.QueryRowContext(ctx, `SELECT `+favoriteColumns+` FROM favorites WHERE favorite_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListHistory implements domain.RecordStore.
func (s *Store) ListHistory(ctx context.Context, userID string, cursor *domain.HistoryCursor, limit int) ([]domain.HistoryEntry, *domain.HistoryCursor, error) {
	args := []any{userID}
	stmt := `SELECT ` + historyColumns + ` FROM history_entries WHERE user_id = ?`
	if cursor != nil {
		stmt += ` AND (completed_at, entry_id) < (?, ?)`
		args = append(args, formatTime(cursor.CompletedAt), cursor.ID.String())
	}
	stmt += ` ORDER BY completed_at DESC, entry_id DESC`
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	out := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.HistoryCursor
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		next = &domain.HistoryCursor{CompletedAt: last.CompletedAt, ID: last.ID}
	}
	return out, next, nil
}

// GetHistoryEntry implements domain.RecordStore.
func (s *Store) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*domain.HistoryEntry, error) {
	e, err := scanHistoryEntry(s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history_entries WHERE entry_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetPrefs implements domain.RecordStore.
func (s *Store) GetPrefs(ctx context.Context, userID string) (*domain.UserPrefs, error) {
	var (
		p                       domain.UserPrefs
		id, hidden, ctxs, flags string
		updated                 sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT prefs_id, user_id, hidden_activities, preferred_contexts, feature_flags, updated_at
        FROM user_prefs WHERE user_id = ?`, userID).Scan(&id, &p.UserID, &hidden, &ctxs, &flags, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(hidden), &p.Hidden); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ctxs), &p.PreferredContexts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flags), &p.FeatureFlags); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save implements domain.RecordStore in one transaction.
func (s *Store) Save(ctx context.Context, changes domain.ChangeSet) (err error) {
	if changes.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, a := range changes.CreatedActivities {
		tags, marshalErr := json.Marshal(nonNil(a.Tags))
		if marshalErr != nil {
			return marshalErr
		}
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO activities (`+activityColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			a.ID.String(), a.Title, a.Description, a.ExpectedMinutes, string(a.Energy), string(a.Context),
			string(a.Category), string(tags), a.Repeatable, string(a.Source), string(a.ModerationStatus)); err != nil {
			return err
		}
	}
	for _, f := range changes.CreatedFavorites {
		if _, err = tx.ExecContext(ctx, `INSERT INTO favorites (favorite_id, user_id, activity_id, created_at, updated_at) VALUES (?,?,?,?,?)`,
			f.ID.String(), f.UserID, f.ActivityID.String(), formatTime(f.CreatedAt), formatTimestamp(f.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, f := range changes.UpdatedFavorites {
		if _, err = tx.ExecContext(ctx, `UPDATE favorites SET updated_at = ? WHERE favorite_id = ?`, formatTimestamp(f.UpdatedAt), f.ID.String()); err != nil {
			return err
		}
	}
	for _, f := range changes.DeletedFavorites {
		if _, err = tx.ExecContext(ctx, `DELETE FROM favorites WHERE favorite_id = ?`, f.ID.String()); err != nil {
			return err
		}
	}
	for _, e := range changes.CreatedHistory {
		var snapshot any
		if len(e.ContextSnapshot) > 0 {
			snapshot = string(e.ContextSnapshot)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO history_entries (entry_id, user_id, activity_id, completed_at, updated_at, context_snapshot) VALUES (?,?,?,?,?,?)`,
			e.ID.String(), e.UserID, e.ActivityID.String(), formatTime(e.CompletedAt), formatTimestamp(e.UpdatedAt), snapshot); err != nil {
			return err
		}
	}
	for _, e := range changes.UpdatedHistory {
		if _, err = tx.ExecContext(ctx, `UPDATE history_entries SET updated_at = ? WHERE entry_id = ?`, formatTimestamp(e.UpdatedAt), e.ID.String()); err != nil {
			return err
		}
	}
	for _, e := range changes.DeletedHistory {
		if _, err = tx.ExecContext(ctx, `DELETE FROM history_entries WHERE entry_id = ?`, e.ID.String()); err != nil {
			return err
		}
	}
	if p := changes.DeletedPrefs; p != nil {
		if _, err = tx.ExecContext(ctx, `DELETE FROM user_prefs WHERE user_id = ?`, p.UserID); err != nil {
			return err
		}
	}
	if p := changes.Prefs; p != nil {
		if err = upsertPrefs(ctx, tx, *p); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	observability.RecordChangesPersisted(time.Now())
	return nil
}

func upsertPrefs(ctx context.Context, tx *sql.Tx, p domain.UserPrefs) error {
	hidden, err := json.Marshal(p.Hidden.Sorted())
	if err != nil {
		return err
	}
	contexts, err := json.Marshal(nonNil(p.PreferredContexts))
	if err != nil {
		return err
	}
	flags, err := json.Marshal(p.FeatureFlags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO user_prefs (prefs_id, user_id, hidden_activities, preferred_contexts, feature_flags, updated_at)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT (user_id) DO UPDATE SET
            hidden_activities = excluded.hidden_activities,
            preferred_contexts = excluded.preferred_contexts,
            feature_flags = excluded.feature_flags,
            updated_at = excluded.updated_at`,
		p.ID.String(), p.UserID, string(hidden), string(contexts), string(flags), formatTimestamp(p.UpdatedAt))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFavorite(row rowScanner) (domain.Favorite, error) {
	var (
		f                    domain.Favorite
		id, activityID, made string
		updated              sql.NullString
	)
	if err := row.Scan(&id, &f.UserID, &activityID, &made, &updated); err != nil {
		return domain.Favorite{}, err
	}
	var err error
	if f.ID, err = uuid.Parse(id); err != nil {
		return domain.Favorite{}, err
	}
	if f.ActivityID, err = uuid.Parse(activityID); err != nil {
		return domain.Favorite{}, err
	}
	if f.CreatedAt, err = parseTime(made); err != nil {
		return domain.Favorite{}, err
	}
	if f.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return domain.Favorite{}, err
	}
	return f, nil
}

func scanHistoryEntry(row rowScanner) (domain.HistoryEntry, error) {
	var (
		e                         domain.HistoryEntry
		id, activityID, completed string
		updated, snapshot         sql.NullString
	)
	if err := row.Scan(&id, &e.UserID, &activityID, &completed, &updated, &snapshot); err != nil {
		return domain.HistoryEntry{}, err
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return domain.HistoryEntry{}, err
	}
	if e.ActivityID, err = uuid.Parse(activityID); err != nil {
		return domain.HistoryEntry{}, err
	}
	if e.CompletedAt, err = parseTime(completed); err != nil {
		return domain.HistoryEntry{}, err
	}
	if e.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return domain.HistoryEntry{}, err
	}
	if snapshot.Valid {
		e.ContextSnapshot = json.RawMessage(snapshot.String)
	}
	return e, nil
}

func scanActivity(row rowScanner) (domain.Activity, error) {
	var (
		a                                                     domain.Activity
		id, energy, socialCtx, category, source, status, tags string
	)
	if err := row.Scan(&id, &a.Title, &a.Description, &a.ExpectedMinutes, &energy, &socialCtx, &category, &tags, &a.Repeatable, &source, &status); err != nil {
		return domain.Activity{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Activity{}, err
	}
	a.ID = parsed
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return domain.Activity{}, err
	}
	a.Energy = domain.Energy(energy)
	a.Context = domain.SocialContext(socialCtx)
	a.Category = domain.Category(category)
	a.Source = domain.Source(source)
	a.ModerationStatus = domain.ModerationStatus(status)
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func formatTimestamp(ts domain.Timestamp) any {
	t, ok := ts.Get()
	if !ok {
		return nil
	}
	return formatTime(t)
}

func parseTimestamp(v sql.NullString) (domain.Timestamp, error) {
	if !v.Valid {
		return domain.Absent(), nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return domain.Absent(), err
	}
	return domain.Present(t), nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
