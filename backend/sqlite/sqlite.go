// Package sqlite stores the records and accounts served by the development
// stub server. Each record keeps its writable fields as a JSON document; the
// server owns per-kind validation.
package sqlite

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

	"orgsync/backend"
)

// Sentinel errors
var (
	ErrNotFound   = errors.New("record not found")
	ErrUserExists = errors.New("user already exists")
)

// Record is one stored entity
type Record struct {
	ID       backend.ID
	Kind     backend.Kind
	Owner    string
	Data     json.RawMessage // writable fields, without the id
	Created  time.Time
	Modified time.Time
}

// User is one registered account
type User struct {
	Username     string
	Email        string
	PasswordHash []byte
	Created      time.Time
}

// Store is a SQLite database of records and users
type Store struct {
	db *sql.DB
}

// New opens (creating when needed) the database at path and initializes the
// schema. ":memory:" opens a private in-memory database.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates the database tables if they don't exist
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			password_hash BLOB NOT NULL,
			created TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			owner TEXT NOT NULL,
			data TEXT NOT NULL,
			created TEXT NOT NULL,
			modified TEXT NOT NULL,
			FOREIGN KEY (owner) REFERENCES users(username) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_records_kind_owner ON records(kind, owner);
	`

	// Enable foreign keys
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Users
// =============================================================================

// CreateUser registers an account. Usernames are compared case-insensitively.
func (s *Store) CreateUser(ctx context.Context, username, email string, passwordHash []byte) error {
	if _, err := s.GetUser(ctx, username); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created) VALUES (?, ?, ?, ?)",
		username, email, passwordHash, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetUser returns the account registered under username
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	var createdStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT username, email, password_hash, created FROM users WHERE LOWER(username) = LOWER(?)",
		username,
	).Scan(&u.Username, &u.Email, &u.PasswordHash, &createdStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Created, _ = time.Parse(time.RFC3339Nano, createdStr)
	return &u, nil
}

// =============================================================================
// Records
// =============================================================================

// List returns owner's records of kind, newest first
func (s *Store) List(ctx context.Context, kind backend.Kind, owner string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, owner, data, created, modified FROM records WHERE kind = ? AND owner = ? ORDER BY id DESC",
		string(kind), owner,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns one of owner's records
func (s *Store) Get(ctx context.Context, kind backend.Kind, owner string, id backend.ID) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, kind, owner, data, created, modified FROM records WHERE id = ? AND kind = ? AND owner = ?",
		int64(id), string(kind), owner,
	)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return r, err
}

// Insert stores a new record and returns it with its assigned ID
func (s *Store) Insert(ctx context.Context, kind backend.Kind, owner string, data json.RawMessage) (Record, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO records (kind, owner, data, created, modified) VALUES (?, ?, ?, ?, ?)",
		string(kind), owner, string(data), nowStr, nowStr,
	)
	if err != nil {
		return Record{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:       backend.ID(id),
		Kind:     kind,
		Owner:    owner,
		Data:     data,
		Created:  now,
		Modified: now,
	}, nil
}

// Update overwrites the data of one of owner's records
func (s *Store) Update(ctx context.Context, kind backend.Kind, owner string, id backend.ID, data json.RawMessage) (Record, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET data = ?, modified = ? WHERE id = ? AND kind = ? AND owner = ?",
		string(data), time.Now().UTC().Format(time.RFC3339Nano), int64(id), string(kind), owner,
	)
	if err != nil {
		return Record{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, kind, owner, id)
}

// Delete removes one of owner's records
func (s *Store) Delete(ctx context.Context, kind backend.Kind, owner string, id backend.ID) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE id = ? AND kind = ? AND owner = ?",
		int64(id), string(kind), owner,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var r Record
	var id int64
	var kind, data, createdStr, modifiedStr string
	if err := row.Scan(&id, &kind, &r.Owner, &data, &createdStr, &modifiedStr); err != nil {
		return Record{}, err
	}
	r.ID = backend.ID(id)
	r.Kind = backend.Kind(kind)
	r.Data = json.RawMessage(data)
	r.Created, _ = time.Parse(time.RFC3339Nano, createdStr)
	r.Modified, _ = time.Parse(time.RFC3339Nano, modifiedStr)
	return r, nil
}

// Entity merges the record's data with its id into one JSON object
func (r Record) Entity() (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(r.Data))) > 0 {
		if err := json.Unmarshal(r.Data, &fields); err != nil {
			return nil, fmt.Errorf("corrupt record %d: %w", r.ID, err)
		}
	}
	fields["id"] = json.RawMessage(r.ID.String())
	return json.Marshal(fields)
}
