// Package sqlite provides a SQLite-backed repository.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/inhouse/internal/domain/model"
)

// Store persists matchmaking state in SQLite.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers; rating writes are last-writer-wins.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertParticipant(ctx context.Context, p model.Participant) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, name, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		p.ID, p.Name, toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert participant %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	var (
		p       model.Participant
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, updated_at FROM participants WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant %s: %w", id, err)
	}
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

func (s *Store) EnsureRatings(ctx context.Context, participantID string, roles []model.Role, initial model.Rating) ([]model.RoleRating, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ensure ratings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	var created []model.RoleRating
	for _, r := range roles {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO ratings (participant_id, role, mu, sigma, games, updated_at)
			 VALUES (?, ?, ?, ?, 0, ?) ON CONFLICT(participant_id, role) DO NOTHING`,
			participantID, int(r), initial.Mu, initial.Sigma, toMillis(now),
		)
		if err != nil {
			return nil, fmt.Errorf("ensure rating %s/%s: %w", participantID, r, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = append(created, model.RoleRating{
				ParticipantID: participantID, Role: r, Rating: initial, UpdatedAt: fromMillis(toMillis(now)),
			})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ensure ratings: %w", err)
	}
	return created, nil
}

func (s *Store) GetRatings(ctx context.Context, participantID string) ([]model.RoleRating, error) {
	return s.queryRatings(ctx,
		`SELECT participant_id, role, mu, sigma, games, updated_at FROM ratings WHERE participant_id = ? ORDER BY role`,
		participantID)
}

func (s *Store) AllRatings(ctx context.Context) ([]model.RoleRating, error) {
	return s.queryRatings(ctx,
		`SELECT participant_id, role, mu, sigma, games, updated_at FROM ratings ORDER BY participant_id, role`)
}

func (s *Store) queryRatings(ctx context.Context, query string, args ...any) ([]model.RoleRating, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []model.RoleRating
	for rows.Next() {
		var (
			row     model.RoleRating
			role    int
			updated int64
		)
		if err := rows.Scan(&row.ParticipantID, &role, &row.Rating.Mu, &row.Rating.Sigma, &row.Games, &updated); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		row.Role = model.Role(role)
		row.UpdatedAt = fromMillis(updated)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) PutRatings(ctx context.Context, rows []model.RoleRating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put ratings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ratings (participant_id, role, mu, sigma, games, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(participant_id, role) DO UPDATE SET
			   mu = excluded.mu, sigma = excluded.sigma, games = excluded.games, updated_at = excluded.updated_at`,
			row.ParticipantID, int(row.Role), row.Rating.Mu, row.Rating.Sigma, row.Games, toMillis(row.UpdatedAt),
		); err != nil {
			return fmt.Errorf("put rating %s/%s: %w", row.ParticipantID, row.Role, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put ratings: %w", err)
	}
	return nil
}

func (s *Store) SaveSession(ctx context.Context, g *model.GameSession) error {
	body, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", g.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, channel, state, created_at, body) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, body = excluded.body`,
		g.ID, g.Channel, g.State.String(), g.CreatedAt.UTC().UnixNano(), string(body),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.GameSession, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM sessions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return decodeSession(body)
}

func (s *Store) ListSessions(ctx context.Context, states ...model.SessionState) ([]*model.GameSession, error) {
	query := `SELECT body FROM sessions`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		marks := make([]string, len(states))
		for i, st := range states {
			marks[i] = "?"
			args = append(args, st.String())
		}
		query += ` WHERE state IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.GameSession
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		g, err := decodeSession(body)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func decodeSession(body string) (*model.GameSession, error) {
	var g model.GameSession
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &g, nil
}

func (s *Store) AddQueueEntries(ctx context.Context, entries []model.QueueEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add queue entries: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue_entries (channel, role, participant_id, enqueued_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(channel, role, participant_id) DO NOTHING`,
			e.Channel, int(e.Role), e.ParticipantID, e.EnqueuedAt.UTC().UnixNano(),
		); err != nil {
			return fmt.Errorf("add queue entry %s/%s/%s: %w", e.Channel, e.Role, e.ParticipantID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add queue entries: %w", err)
	}
	return nil
}

func (s *Store) RemoveQueueEntries(ctx context.Context, channel, participantID string) error {
	var err error
	if channel == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE participant_id = ?`, participantID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE channel = ? AND participant_id = ?`, channel, participantID)
	}
	if err != nil {
		return fmt.Errorf("remove queue entries for %s: %w", participantID, err)
	}
	return nil
}

func (s *Store) LoadQueueEntries(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, role, participant_id, enqueued_at FROM queue_entries
		 ORDER BY enqueued_at, channel, role, participant_id`)
	if err != nil {
		return nil, fmt.Errorf("load queue entries: %w", err)
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		var (
			e    model.QueueEntry
			role int
			at   int64
		)
		if err := rows.Scan(&e.Channel, &role, &e.ParticipantID, &at); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.Role = model.Role(role)
		e.EnqueuedAt = time.Unix(0, at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
