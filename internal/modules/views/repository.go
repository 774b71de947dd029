package views

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Record is a stored view together with its persistence timestamps.
type Record struct {
	View
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Repository handles view persistence in views.db.
//
// Listing order is stable: views come back ordered by creation time with the
// id as tie-breaker, so the view matrix built from a listing keeps its row
// order across calls.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new views repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "views").Logger(),
	}
}

// Create stores a new view. The view must already carry a unique id
// (NewView assigns one).
func (r *Repository) Create(view View) error {
	if err := view.Validate(); err != nil {
		return err
	}

	allocation, err := json.Marshal(view.Allocation)
	if err != nil {
		return fmt.Errorf("failed to encode allocation: %w", err)
	}

	now := time.Now().Unix()
	query := `INSERT INTO views (id, name, confidence, out_performance, allocation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := r.db.Exec(query, view.ID, view.Name, view.Confidence, view.OutPerformance, string(allocation), now, now); err != nil {
		return fmt.Errorf("failed to insert view: %w", err)
	}

	r.log.Info().Str("view_id", view.ID).Str("name", view.Name).Msg("View created")
	return nil
}

// Get returns a single view by id. Returns ErrNotFound when no view with
// that id exists.
func (r *Repository) Get(id string) (View, error) {
	query := `SELECT id, name, confidence, out_performance, allocation
		FROM views WHERE id = ?`

	view, err := scanView(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return View{}, fmt.Errorf("%w: view %s", ErrNotFound, id)
	}
	if err != nil {
		return View{}, fmt.Errorf("failed to query view: %w", err)
	}

	return view, nil
}

// GetAll returns all stored views in stable order.
func (r *Repository) GetAll() ([]View, error) {
	records, err := r.Records()
	if err != nil {
		return nil, err
	}

	views := make([]View, len(records))
	for i, rec := range records {
		views[i] = rec.View
	}
	return views, nil
}

// Records returns all stored views with their timestamps, in stable order.
func (r *Repository) Records() ([]Record, error) {
	query := `SELECT id, name, confidence, out_performance, allocation, created_at, updated_at
		FROM views ORDER BY created_at, id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var allocation string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Confidence, &rec.OutPerformance, &allocation, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		if err := json.Unmarshal([]byte(allocation), &rec.Allocation); err != nil {
			return nil, fmt.Errorf("failed to decode allocation for view %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating views: %w", err)
	}

	return records, nil
}

// Collection loads all stored views into a validated Collection, preserving
// the stable storage order.
func (r *Repository) Collection() (Collection, error) {
	views, err := r.GetAll()
	if err != nil {
		return Collection{}, err
	}
	return NewCollection(views...)
}

// CollectionFor loads the identified views into a validated Collection.
// Selected views keep the stable storage order regardless of the order the
// ids are given in, and duplicate ids select a view once. Any id with no
// stored view fails with ErrNotFound. No ids selects nothing.
func (r *Repository) CollectionFor(ids ...string) (Collection, error) {
	if len(ids) == 0 {
		return NewCollection()
	}

	all, err := r.GetAll()
	if err != nil {
		return Collection{}, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	selected := make([]View, 0, len(ids))
	for _, v := range all {
		if wanted[v.ID] {
			selected = append(selected, v)
			delete(wanted, v.ID)
		}
	}
	for _, id := range ids {
		if wanted[id] {
			return Collection{}, fmt.Errorf("%w: view %s", ErrNotFound, id)
		}
	}

	return NewCollection(selected...)
}

// Update rewrites an existing view in place. Returns ErrNotFound when no
// view with the given id exists.
func (r *Repository) Update(view View) error {
	if err := view.Validate(); err != nil {
		return err
	}

	allocation, err := json.Marshal(view.Allocation)
	if err != nil {
		return fmt.Errorf("failed to encode allocation: %w", err)
	}

	query := `UPDATE views SET name = ?, confidence = ?, out_performance = ?, allocation = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.Exec(query, view.Name, view.Confidence, view.OutPerformance, string(allocation), time.Now().Unix(), view.ID)
	if err != nil {
		return fmt.Errorf("failed to update view: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: view %s", ErrNotFound, view.ID)
	}

	r.log.Info().Str("view_id", view.ID).Msg("View updated")
	return nil
}

// Delete removes a view by id. Returns ErrNotFound when no view with that
// id exists.
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM views WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete view: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: view %s", ErrNotFound, id)
	}

	r.log.Info().Str("view_id", id).Msg("View deleted")
	return nil
}

// DeleteAll removes every stored view.
func (r *Repository) DeleteAll() error {
	result, err := r.db.Exec("DELETE FROM views")
	if err != nil {
		return fmt.Errorf("failed to delete views: %w", err)
	}

	affected, _ := result.RowsAffected()
	r.log.Warn().Int64("rows_affected", affected).Msg("All views deleted")
	return nil
}

// Count returns the number of stored views.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM views").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count views: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanView(row rowScanner) (View, error) {
	var view View
	var allocation string
	if err := row.Scan(&view.ID, &view.Name, &view.Confidence, &view.OutPerformance, &allocation); err != nil {
		return View{}, err
	}
	if err := json.Unmarshal([]byte(allocation), &view.Allocation); err != nil {
		return View{}, fmt.Errorf("failed to decode allocation: %w", err)
	}
	return view, nil
}
