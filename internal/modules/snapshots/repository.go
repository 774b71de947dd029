package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository handles snapshot persistence in results.db. Weights and view
// variances are stored as one msgpack blob per row.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshots repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Save stores a snapshot and returns its assigned id.
func (r *Repository) Save(snapshot Snapshot) (int64, error) {
	blob, err := msgpack.Marshal(payload{
		Weights:       snapshot.Weights,
		ViewVariances: snapshot.ViewVariances,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot payload: %w", err)
	}

	createdAt := snapshot.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	query := `INSERT INTO weight_snapshots (created_at, start_date, end_date, view_count, payload)
		VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.Exec(query, createdAt, snapshot.StartDate, snapshot.EndDate, snapshot.ViewCount, blob)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}

	r.log.Info().
		Int64("snapshot_id", id).
		Int("view_count", snapshot.ViewCount).
		Msg("Snapshot saved")

	return id, nil
}

// Latest returns the most recent snapshot. Returns ErrNoSnapshots when the
// table is empty.
func (r *Repository) Latest() (Snapshot, error) {
	query := `SELECT id, created_at, start_date, end_date, view_count, payload
		FROM weight_snapshots ORDER BY created_at DESC, id DESC LIMIT 1`

	snapshot, err := scanSnapshot(r.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNoSnapshots
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return snapshot, nil
}

// Get returns a snapshot by id. Returns ErrNoSnapshots when the id does not
// exist.
func (r *Repository) Get(id int64) (Snapshot, error) {
	query := `SELECT id, created_at, start_date, end_date, view_count, payload
		FROM weight_snapshots WHERE id = ?`

	snapshot, err := scanSnapshot(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return Snapshot{}, fmt.Errorf("%w: id %d", ErrNoSnapshots, id)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}

	return snapshot, nil
}

// List returns the most recent snapshots, newest first.
func (r *Repository) List(limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, created_at, start_date, end_date, view_count, payload
		FROM weight_snapshots ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0, limit)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// Prune deletes all but the newest keep snapshots. Used by the maintenance
// job to bound results.db growth.
func (r *Repository) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}

	query := `DELETE FROM weight_snapshots WHERE id NOT IN (
		SELECT id FROM weight_snapshots ORDER BY created_at DESC, id DESC LIMIT ?
	)`

	result, err := r.db.Exec(query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Int("kept", keep).Msg("Pruned old snapshots")
	}

	return deleted, nil
}

// Count returns the number of stored snapshots.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM weight_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snapshot Snapshot
	var blob []byte

	if err := row.Scan(&snapshot.ID, &snapshot.CreatedAt, &snapshot.StartDate, &snapshot.EndDate, &snapshot.ViewCount, &blob); err != nil {
		return Snapshot{}, err
	}

	var p payload
	if err := msgpack.Unmarshal(blob, &p); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	snapshot.Weights = p.Weights
	snapshot.ViewVariances = p.ViewVariances

	return snapshot, nil
}
