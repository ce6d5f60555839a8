package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetRepoByPath returns the repo registered at path, or ErrNotFound.
func (s *Store) GetRepoByPath(path string) (Repo, error) {
	row := s.db.QueryRow(`SELECT id, path, name, default_base, remote_url, created_at, updated_at
		FROM repos WHERE path = ?`, path)
	return scanRepo(row)
}

// GetRepo returns the repo by id, or ErrNotFound.
func (s *Store) GetRepo(id string) (Repo, error) {
	row := s.db.QueryRow(`SELECT id, path, name, default_base, remote_url, created_at, updated_at
		FROM repos WHERE id = ?`, id)
	return scanRepo(row)
}

// CreateRepo inserts a new repo row. Callers must have already checked
// GetRepoByPath to decide whether registration is needed (spec §4.G.1
// step 1: "register if new").
func (s *Store) CreateRepo(path, name, defaultBase, remoteURL string) (Repo, error) {
	now := isoNow()
	r := Repo{
		ID:          newID(),
		Path:        path,
		Name:        name,
		DefaultBase: defaultBase,
		RemoteURL:   remoteURL,
	}
	_, err := s.db.Exec(`INSERT INTO repos (id, path, name, default_base, remote_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, r.ID, r.Path, r.Name, r.DefaultBase, r.RemoteURL, now, now)
	if err != nil {
		return Repo{}, wrapDBError("create repo", err)
	}
	r.CreatedAt, _ = parseISO(now)
	r.UpdatedAt = r.CreatedAt
	return r, nil
}

// ListRepos returns all registered repos.
func (s *Store) ListRepos() ([]Repo, error) {
	rows, err := s.db.Query(`SELECT id, path, name, default_base, remote_url, created_at, updated_at FROM repos`)
	if err != nil {
		return nil, wrapDBError("list repos", err)
	}
	defer rows.Close()

	var out []Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, wrapDBError("list repos", err)
		}
		out = append(out, r)
	}
	return out, wrapDBError("list repos", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepo(row rowScanner) (Repo, error) {
	var r Repo
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Path, &r.Name, &r.DefaultBase, &r.RemoteURL, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Repo{}, fmt.Errorf("get repo: %w", ErrNotFound)
		}
		return Repo{}, wrapDBError("get repo", err)
	}
	r.CreatedAt, _ = parseISO(createdAt)
	r.UpdatedAt, _ = parseISO(updatedAt)
	return r, nil
}
