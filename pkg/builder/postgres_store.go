package builder

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists builds and logs to Postgres.
type PostgresStore struct {
	db *sql.DB
}

var _ History = (*PostgresStore)(nil)

func NewPostgresStore(conn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", conn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS image_builds (
    id TEXT PRIMARY KEY,
    dir TEXT NOT NULL,
    model_path TEXT NOT NULL,
    requirements_path TEXT NOT NULL,
    entry_file TEXT NOT NULL,
    image_name TEXT NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    error TEXT
);
CREATE TABLE IF NOT EXISTS image_build_logs (
    id BIGSERIAL PRIMARY KEY,
    build_id TEXT NOT NULL REFERENCES image_builds(id) ON DELETE CASCADE,
    line TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) Create(build Build) error {
	query := `INSERT INTO image_builds (id, dir, model_path, requirements_path, entry_file, image_name, stage, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
    dir = EXCLUDED.dir,
    model_path = EXCLUDED.model_path,
    requirements_path = EXCLUDED.requirements_path,
    entry_file = EXCLUDED.entry_file,
    image_name = EXCLUDED.image_name,
    stage = EXCLUDED.stage,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query,
		build.ID,
		build.Dir,
		build.ModelPath,
		build.RequirementsPath,
		build.EntryFile,
		build.ImageName,
		build.Stage,
		build.Status,
		build.CreatedAt,
		build.UpdatedAt,
	)
	return err
}

// UpdateStatus mirrors MemStore.SetStatus.
func (s *PostgresStore) UpdateStatus(id string, status Status, at time.Time, errMsg string) error {
	var finishedAt sql.NullTime
	if status.Finished() {
		finishedAt = sql.NullTime{Time: at, Valid: true}
	}
	_, err := s.db.Exec(`UPDATE image_builds SET status=$1, updated_at=$2, finished_at=$3, error=$4 WHERE id=$5`,
		status, at, finishedAt, errMsg, id)
	return err
}

func (s *PostgresStore) UpdateStage(id string, stage Stage) error {
	_, err := s.db.Exec(`UPDATE image_builds SET stage=$1, updated_at=$2 WHERE id=$3`, stage, time.Now().UTC(), id)
	return err
}

func (s *PostgresStore) AppendLog(id string, line string) error {
	_, err := s.db.Exec(`INSERT INTO image_build_logs (build_id, line) VALUES ($1,$2)`, id, line)
	return err
}

const buildColumns = `id, dir, model_path, requirements_path, entry_file, image_name, stage, status, created_at, updated_at, finished_at, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (Build, error) {
	var b Build
	var finishedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&b.ID, &b.Dir, &b.ModelPath, &b.RequirementsPath, &b.EntryFile, &b.ImageName, &b.Stage, &b.Status, &b.CreatedAt, &b.UpdatedAt, &finishedAt, &errMsg); err != nil {
		return Build{}, err
	}
	if finishedAt.Valid {
		b.FinishedAt = finishedAt.Time
	}
	if errMsg.Valid {
		b.Error = errMsg.String
	}
	return b, nil
}

func (s *PostgresStore) List() ([]Build, error) {
	rows, err := s.db.Query(`SELECT ` + buildColumns + ` FROM image_builds ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

func (s *PostgresStore) Get(id string) (Build, error) {
	b, err := scanBuild(s.db.QueryRow(`SELECT `+buildColumns+` FROM image_builds WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, ErrBuildNotFound
	}
	return b, err
}

// LogsSince returns the lines of a build after the first offset ones.
func (s *PostgresStore) LogsSince(id string, offset int) ([]string, error) {
	rows, err := s.db.Query(`SELECT line FROM image_build_logs WHERE build_id=$1 ORDER BY id ASC OFFSET $2`, id, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
