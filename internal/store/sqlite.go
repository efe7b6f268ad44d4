package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jobdeck/swipequeue/pkg/models"
)

// OpenSQLite opens (creating if necessary) the embedded database file.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}

// SQLiteStore implements the Store interface on an embedded SQLite database,
// so a single-node deployment persists state without any external service.
// UUIDs are stored as text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Automation refs ---

func (s *SQLiteStore) UpsertAutomationRef(ctx context.Context, ref *models.AutomationRef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automation_refs (profile_id, automation_id, profile_name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (profile_id) DO UPDATE SET
		   automation_id = excluded.automation_id,
		   profile_name = excluded.profile_name`,
		ref.ProfileID.String(), ref.AutomationID.String(), ref.ProfileName, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert automation ref: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAutomationRef(ctx context.Context, profileID uuid.UUID) (*models.AutomationRef, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT profile_id, automation_id, profile_name, created_at
		 FROM automation_refs WHERE profile_id = ?`, profileID.String())

	ref, err := scanAutomationRef(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation ref: %w", err)
	}
	return ref, nil
}

func (s *SQLiteStore) ListAutomationRefs(ctx context.Context) ([]*models.AutomationRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, automation_id, profile_name, created_at
		 FROM automation_refs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list automation refs: %w", err)
	}
	defer rows.Close()

	var refs []*models.AutomationRef
	for rows.Next() {
		ref, err := scanAutomationRef(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan automation ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLiteStore) DeleteAutomationRefs(ctx context.Context, profileIDs []uuid.UUID) error {
	if len(profileIDs) == 0 {
		return nil
	}
	query, args := uuidInClause(`DELETE FROM automation_refs WHERE profile_id IN`, profileIDs)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete automation refs: %w", err)
	}
	return nil
}

// --- Pending jobs ---

func (s *SQLiteStore) UpsertPendingJob(ctx context.Context, job *models.PendingJob) error {
	details, err := json.Marshal(job.Details)
	if err != nil {
		return fmt.Errorf("marshal pending job details: %w", err)
	}
	resume, err := json.Marshal(job.Resume)
	if err != nil {
		return fmt.Errorf("marshal pending job resume: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_jobs (profile_id, profile_name, job_url, details, resume, attempts, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (profile_id, job_url) DO UPDATE SET
		   profile_name = excluded.profile_name,
		   details = excluded.details,
		   resume = excluded.resume,
		   attempts = excluded.attempts`,
		job.ProfileID.String(), job.ProfileName, job.JobURL, string(details), string(resume), job.Attempts, job.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("upsert pending job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePendingJob(ctx context.Context, profileID uuid.UUID, jobURL string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_jobs WHERE profile_id = ? AND job_url = ?`, profileID.String(), jobURL)
	if err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPendingJobs(ctx context.Context) ([]*models.PendingJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, profile_name, job_url, details, resume, attempts, enqueued_at
		 FROM pending_jobs ORDER BY enqueued_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PendingJob
	for rows.Next() {
		var (
			job       models.PendingJob
			profileID string
			details   string
			resume    string
		)
		if err := rows.Scan(&profileID, &job.ProfileName, &job.JobURL, &details, &resume, &job.Attempts, &job.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		if job.ProfileID, err = uuid.Parse(profileID); err != nil {
			return nil, fmt.Errorf("parse pending job profile id: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &job.Details); err != nil {
			return nil, fmt.Errorf("unmarshal pending job details: %w", err)
		}
		if err := json.Unmarshal([]byte(resume), &job.Resume); err != nil {
			return nil, fmt.Errorf("unmarshal pending job resume: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) CountPendingJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_jobs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DeletePendingJobsForProfiles(ctx context.Context, profileIDs []uuid.UUID) error {
	if len(profileIDs) == 0 {
		return nil
	}
	query, args := uuidInClause(`DELETE FROM pending_jobs WHERE profile_id IN`, profileIDs)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete pending jobs for profiles: %w", err)
	}
	return nil
}

// --- Job snapshots ---

func (s *SQLiteStore) UpsertJobSnapshot(ctx context.Context, snap *models.JobSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_snapshots (job_url, title, company, source, cached_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (job_url) DO UPDATE SET
		   title = excluded.title,
		   company = excluded.company,
		   source = excluded.source,
		   cached_at = excluded.cached_at`,
		snap.JobURL, snap.Title, snap.Company, snap.Source, snap.CachedAt)
	if err != nil {
		return fmt.Errorf("upsert job snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListJobSnapshots(ctx context.Context) ([]*models.JobSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_url, title, company, source, cached_at
		 FROM job_snapshots ORDER BY cached_at`)
	if err != nil {
		return nil, fmt.Errorf("list job snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.JobSnapshot
	for rows.Next() {
		var snap models.JobSnapshot
		if err := rows.Scan(&snap.JobURL, &snap.Title, &snap.Company, &snap.Source, &snap.CachedAt); err != nil {
			return nil, fmt.Errorf("scan job snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) DeleteJobSnapshots(ctx context.Context, jobURLs []string) error {
	if len(jobURLs) == 0 {
		return nil
	}
	placeholders := make([]string, len(jobURLs))
	args := make([]any, len(jobURLs))
	for i, u := range jobURLs {
		placeholders[i] = "?"
		args[i] = u
	}
	query := fmt.Sprintf(`DELETE FROM job_snapshots WHERE job_url IN (%s)`, strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete job snapshots: %w", err)
	}
	return nil
}

// --- helpers ---

func scanAutomationRef(scan func(dest ...any) error) (*models.AutomationRef, error) {
	var (
		ref          models.AutomationRef
		profileID    string
		automationID string
	)
	if err := scan(&profileID, &automationID, &ref.ProfileName, &ref.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if ref.ProfileID, err = uuid.Parse(profileID); err != nil {
		return nil, fmt.Errorf("parse profile id: %w", err)
	}
	if ref.AutomationID, err = uuid.Parse(automationID); err != nil {
		return nil, fmt.Errorf("parse automation id: %w", err)
	}
	return &ref, nil
}

func uuidInClause(prefix string, ids []uuid.UUID) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	return fmt.Sprintf("%s (%s)", prefix, strings.Join(placeholders, ", ")), args
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
