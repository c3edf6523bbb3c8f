// Package postgres implements domain.RecordStore on Postgres. Every Save runs in
// one transaction that also writes the matching outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/events"
	"example.com/dailymenu/internal/observability"
)

const activityColumns = `activity_id, title, description, expected_minutes, energy, social_context, category, tags, repeatable, source, moderation_status`

// Store provides Postgres-backed persistence for menu records and outbox events.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// FindActivities implements domain.RecordStore.
func (s *Store) FindActivities(ctx context.Context, query domain.ActivityQuery) ([]domain.Activity, error) {
	exclude := make([]string, 0, len(query.Exclude))
	for id := range query.Exclude {
		exclude = append(exclude, id.String())
	}

	rows, err := s.pool.Query(ctx, `SELECT `+activityColumns+`
        FROM activities
        WHERE expected_minutes BETWEEN $1 AND $2
          AND energy = $3
          AND social_context = $4
          AND NOT (activity_id::text = ANY($5))
        ORDER BY title`,
		query.MinMinutes, query.MaxMinutes, string(query.Energy), string(query.Context), exclude,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// GetActivity implements domain.RecordStore.
func (s *Store) GetActivity(ctx context.Context, id uuid.UUID) (*domain.Activity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = $1`, id.String())
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// FindActivityByTitle implements domain.RecordStore.
func (s *Store) FindActivityByTitle(ctx context.Context, title string) (*domain.Activity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE lower(title) = lower($1) LIMIT 1`, title)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.pool.Query(ctx, `SELECT `+favoriteColumns+`
        FROM favorites WHERE user_id = $1 ORDER BY created_at DESC`, userID)
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
	f, err := scanFavorite(s.pool.QueryRow(ctx, `SELECT `+favoriteColumns+` FROM favorites WHERE favorite_id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListHistory implements domain.RecordStore.
func (s *Store) ListHistory(ctx context.Context, userID string, cursor *domain.HistoryCursor, limit int) ([]domain.HistoryEntry, *domain.HistoryCursor, error) {
	args := []interface{}{userID}
	query := `SELECT ` + historyColumns + ` FROM history_entries WHERE user_id = $1`

	if cursor != nil {
		query += ` AND (completed_at, entry_id) < ($2, $3)`
		args = append(args, cursor.CompletedAt, cursor.ID.String())
	}
	query += ` ORDER BY completed_at DESC, entry_id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.HistoryCursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.HistoryCursor{CompletedAt: last.CompletedAt, ID: last.ID}
	}
	return results, next, nil
}

// GetHistoryEntry implements domain.RecordStore.
func (s *Store) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*domain.HistoryEntry, error) {
	e, err := scanHistoryEntry(s.pool.QueryRow(ctx, `SELECT `+historyColumns+` FROM history_entries WHERE entry_id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
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
		p        domain.UserPrefs
		hidden   []byte
		contexts []string
		flags    []byte
		updated  *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT prefs_id, user_id, hidden_activities, preferred_contexts, feature_flags, updated_at
        FROM user_prefs WHERE user_id = $1`, userID).Scan(&p.ID, &p.UserID, &hidden, &contexts, &flags, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(hidden, &p.Hidden); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flags, &p.FeatureFlags); err != nil {
		return nil, err
	}
	for _, c := range contexts {
		p.PreferredContexts = append(p.PreferredContexts, domain.SocialContext(c))
	}
	p.UpdatedAt = domain.FromPtr(updated)
	return &p, nil
}

// Save implements domain.RecordStore. Nothing is written unless every change
// and its outbox events commit together.
func (s *Store) Save(ctx context.Context, changes domain.ChangeSet) (err error) {
	if changes.Empty() {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	for _, a := range changes.CreatedActivities {
		if err = insertActivity(ctx, tx, a); err != nil {
			return err
		}
	}
	for _, f := range changes.CreatedFavorites {
		if _, err = tx.Exec(ctx, `INSERT INTO favorites (favorite_id, user_id, activity_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
			f.ID.String(), f.UserID, f.ActivityID.String(), f.CreatedAt, f.UpdatedAt.Ptr()); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, favoriteEvent(events.TypeFavoriteCreated, f)); err != nil {
			return err
		}
	}
	for _, f := range changes.UpdatedFavorites {
		if _, err = tx.Exec(ctx, `UPDATE favorites SET updated_at = $2 WHERE favorite_id = $1`, f.ID.String(), f.UpdatedAt.Ptr()); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, favoriteEvent(events.TypeFavoriteUpdated, f)); err != nil {
			return err
		}
	}
	for _, f := range changes.DeletedFavorites {
		if _, err = tx.Exec(ctx, `DELETE FROM favorites WHERE favorite_id = $1`, f.ID.String()); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, favoriteEvent(events.TypeFavoriteDeleted, f)); err != nil {
			return err
		}
	}
	for _, e := range changes.CreatedHistory {
		if _, err = tx.Exec(ctx, `INSERT INTO history_entries (entry_id, user_id, activity_id, completed_at, updated_at, context_snapshot) VALUES ($1,$2,$3,$4,$5,$6)`,
			e.ID.String(), e.UserID, e.ActivityID.String(), e.CompletedAt, e.UpdatedAt.Ptr(), nullJSON(e.ContextSnapshot)); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, historyEvent(events.TypeHistoryRecorded, e)); err != nil {
			return err
		}
	}
	for _, e := range changes.UpdatedHistory {
		if _, err = tx.Exec(ctx, `UPDATE history_entries SET updated_at = $2 WHERE entry_id = $1`, e.ID.String(), e.UpdatedAt.Ptr()); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, historyEvent(events.TypeHistoryUpdated, e)); err != nil {
			return err
		}
	}
	for _, e := range changes.DeletedHistory {
		if _, err = tx.Exec(ctx, `DELETE FROM history_entries WHERE entry_id = $1`, e.ID.String()); err != nil {
			return err
		}
		if err = insertOutbox(ctx, tx, historyEvent(events.TypeHistoryDeleted, e)); err != nil {
			return err
		}
	}
	if p := changes.DeletedPrefs; p != nil {
		if err = deletePrefs(ctx, tx, p.UserID); err != nil {
			return err
		}
	}
	if changes.Prefs != nil {
		if err = upsertPrefs(ctx, tx, *changes.Prefs); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordChangesPersisted(s.now())
	return nil
}

func insertActivity(ctx context.Context, tx pgx.Tx, a domain.Activity) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := tx.Exec(ctx, `INSERT INTO activities (`+activityColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (activity_id) DO NOTHING`,
		a.ID.String(),
		a.Title,
		a.Description,
		a.ExpectedMinutes,
		string(a.Energy),
		string(a.Context),
		string(a.Category),
		tags,
		a.Repeatable,
		string(a.Source),
		string(a.ModerationStatus),
	)
	return err
}

// upsertPrefs keeps the first prefs_id stored for the user so concurrent
// creators converge on a single record.
func upsertPrefs(ctx context.Context, tx pgx.Tx, p domain.UserPrefs) error {
	hidden, err := json.Marshal(p.Hidden)
	if err != nil {
		return err
	}
	flags, err := json.Marshal(p.FeatureFlags)
	if err != nil {
		return err
	}
	contexts := make([]string, 0, len(p.PreferredContexts))
	for _, c := range p.PreferredContexts {
		contexts = append(contexts, string(c))
	}

	var storedID uuid.UUID
	err = tx.QueryRow(ctx, `INSERT INTO user_prefs (prefs_id, user_id, hidden_activities, preferred_contexts, feature_flags, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE SET
            hidden_activities = EXCLUDED.hidden_activities,
            preferred_contexts = EXCLUDED.preferred_contexts,
            feature_flags = EXCLUDED.feature_flags,
            updated_at = EXCLUDED.updated_at
        RETURNING prefs_id`,
		p.ID.String(), p.UserID, hidden, contexts, flags, p.UpdatedAt.Ptr(),
	).Scan(&storedID)
	if err != nil {
		return err
	}

	return insertOutbox(ctx, tx, outboxEvent{
		eventType:   events.TypePrefsUpdated,
		userID:      p.UserID,
		aggregateID: storedID.String(),
		payload: events.PrefsUpdated{
			PrefsID:        storedID,
			UserID:         p.UserID,
			HiddenActivity: p.Hidden.Sorted(),
			UpdatedAt:      p.UpdatedAt.Ptr(),
		},
	})
}

// deletePrefs removes the user's preferences and announces it only when a
// row existed.
func deletePrefs(ctx context.Context, tx pgx.Tx, userID string) error {
	var prefsID uuid.UUID
	err := tx.QueryRow(ctx, `DELETE FROM user_prefs WHERE user_id = $1 RETURNING prefs_id`, userID).Scan(&prefsID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return insertOutbox(ctx, tx, outboxEvent{
		eventType:   events.TypePrefsDeleted,
		userID:      userID,
		aggregateID: prefsID.String(),
		payload:     events.PrefsUpdated{PrefsID: prefsID, UserID: userID},
	})
}

func favoriteEvent(eventType string, f domain.Favorite) outboxEvent {
	return outboxEvent{
		eventType:   eventType,
		userID:      f.UserID,
		aggregateID: f.ID.String(),
		payload: events.FavoriteChanged{
			FavoriteID: f.ID,
			UserID:     f.UserID,
			ActivityID: f.ActivityID,
			CreatedAt:  f.CreatedAt,
			UpdatedAt:  f.UpdatedAt.Ptr(),
		},
	}
}

func historyEvent(eventType string, e domain.HistoryEntry) outboxEvent {
	return outboxEvent{
		eventType:   eventType,
		userID:      e.UserID,
		aggregateID: e.ID.String(),
		payload: events.HistoryChanged{
			EntryID:     e.ID,
			UserID:      e.UserID,
			ActivityID:  e.ActivityID,
			CompletedAt: e.CompletedAt,
			UpdatedAt:   e.UpdatedAt.Ptr(),
		},
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFavorite(row rowScanner) (domain.Favorite, error) {
	var (
		f       domain.Favorite
		updated *time.Time
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.ActivityID, &f.CreatedAt, &updated); err != nil {
		return domain.Favorite{}, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = domain.FromPtr(updated)
	return f, nil
}

func scanHistoryEntry(row rowScanner) (domain.HistoryEntry, error) {
	var (
		e        domain.HistoryEntry
		updated  *time.Time
		snapshot []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.ActivityID, &e.CompletedAt, &updated, &snapshot); err != nil {
		return domain.HistoryEntry{}, err
	}
	e.CompletedAt = e.CompletedAt.UTC()
	e.UpdatedAt = domain.FromPtr(updated)
	if len(snapshot) > 0 {
		e.ContextSnapshot = json.RawMessage(snapshot)
	}
	return e, nil
}

func scanActivity(row rowScanner) (domain.Activity, error) {
	var (
		a                                           domain.Activity
		energy, socialCtx, category, source, status string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &a.ExpectedMinutes, &energy, &socialCtx, &category, &a.Tags, &a.Repeatable, &source, &status); err != nil {
		return domain.Activity{}, err
	}
	a.Energy = domain.Energy(energy)
	a.Context = domain.SocialContext(socialCtx)
	a.Category = domain.Category(category)
	a.Source = domain.Source(source)
	a.ModerationStatus = domain.ModerationStatus(status)
	return a, nil
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
