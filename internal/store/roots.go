package store

import (
	"database/sql"
	"fmt"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// CreateRoot inserts a new monitored root. Roots are unique by path and
// never physically deleted once created.
func (s *Store) CreateRoot(path string) (*model.Root, error) {
	res, err := s.db.Exec("INSERT INTO roots (root_path) VALUES (?)", path)
	if err != nil {
		return nil, apperr.Store("create root", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("create root", err)
	}
	return &model.Root{RootID: id, RootPath: path}, nil
}

// GetRoot fetches a root by id.
func (s *Store) GetRoot(rootID int64) (*model.Root, error) {
	var r model.Root
	err := s.db.QueryRow("SELECT root_id, root_path FROM roots WHERE root_id = ?", rootID).
		Scan(&r.RootID, &r.RootPath)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("root %d not found", rootID))
	}
	if err != nil {
		return nil, apperr.Store("get root", err)
	}
	return &r, nil
}

// GetRootByPath fetches a root by its path, or nil if none exists.
func (s *Store) GetRootByPath(path string) (*model.Root, error) {
	var r model.Root
	err := s.db.QueryRow("SELECT root_id, root_path FROM roots WHERE root_path = ?", path).
		Scan(&r.RootID, &r.RootPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("get root by path", err)
	}
	return &r, nil
}

// ListRoots returns every monitored root, ordered by path.
func (s *Store) ListRoots() ([]*model.Root, error) {
	rows, err := s.db.Query("SELECT root_id, root_path FROM roots ORDER BY root_path")
	if err != nil {
		return nil, apperr.Store("list roots", err)
	}
	defer rows.Close()

	var out []*model.Root
	for rows.Next() {
		var r model.Root
		if err := rows.Scan(&r.RootID, &r.RootPath); err != nil {
			return nil, apperr.Store("list roots", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
