package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/persona/internal/rapidapi"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps saved profiles in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "persona.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: an in-memory database is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded migrations not yet recorded in schema_version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Saved profiles ---

const defaultListLimit = 50

const profileColumns = `id, doc, created_at, updated_at`

// SaveProfile stores p keyed by its username (case-insensitive). Saving an
// existing username replaces the document and keeps the original ID.
func (s *Store) SaveProfile(p rapidapi.Profile) (SavedProfile, error) {
	if strings.TrimSpace(p.Username) == "" {
		return SavedProfile{}, errors.New("saving profile: username is empty")
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return SavedProfile{}, fmt.Errorf("marshaling profile: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.Exec(`
		INSERT INTO saved_profiles (id, username, name, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			name = excluded.name, doc = excluded.doc, updated_at = excluded.updated_at`,
		uuid.New().String(), p.Username, p.Name, string(doc), now, now,
	)
	if err != nil {
		return SavedProfile{}, err
	}
	return s.GetProfile(p.Username)
}

// GetProfile returns the saved profile for username.
func (s *Store) GetProfile(username string) (SavedProfile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM saved_profiles WHERE username = ?`, username)
	sp, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedProfile{}, ErrNotFound
	}
	return sp, err
}

// ListProfiles returns saved profiles whose username or display name contains
// query (case-insensitive), newest first. An empty query matches all.
func (s *Store) ListProfiles(query string, limit int) ([]SavedProfile, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	rows, err := s.db.Query(`
		SELECT `+profileColumns+` FROM saved_profiles
		WHERE ? = '' OR instr(lower(username), ?) > 0 OR instr(lower(name), ?) > 0
		ORDER BY created_at DESC, username ASC
		LIMIT ?`, q, q, q, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SavedProfile
	for rows.Next() {
		sp, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sp)
	}
	return results, rows.Err()
}

// DeleteProfile removes the saved profile for username.
func (s *Store) DeleteProfile(username string) error {
	res, err := s.db.Exec(`DELETE FROM saved_profiles WHERE username = ?`, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(sc scanner) (SavedProfile, error) {
	var (
		sp                   SavedProfile
		doc                  string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&sp.ID, &doc, &createdAt, &updatedAt); err != nil {
		return SavedProfile{}, err
	}
	if err := json.Unmarshal([]byte(doc), &sp.Profile); err != nil {
		return SavedProfile{}, fmt.Errorf("decoding profile doc: %w", err)
	}
	var err error
	if sp.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SavedProfile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sp.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return SavedProfile{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sp, nil
}
