package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Automation refs ---

func (s *PostgresStore) UpsertAutomationRef(ctx context.Context, ref *models.AutomationRef) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO automation_refs (profile_id, automation_id, profile_name, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (profile_id) DO UPDATE SET
		   automation_id = EXCLUDED.automation_id,
		   profile_name = EXCLUDED.profile_name`,
		ref.ProfileID, ref.AutomationID, ref.ProfileName, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert automation ref: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAutomationRef(ctx context.Context, profileID uuid.UUID) (*models.AutomationRef, error) {
	var ref models.AutomationRef
	err := s.pool.QueryRow(ctx,
		`SELECT profile_id, automation_id, profile_name, created_at
		 FROM automation_refs WHERE profile_id = $1`, profileID,
	).Scan(&ref.ProfileID, &ref.AutomationID, &ref.ProfileName, &ref.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation ref: %w", err)
	}
	return &ref, nil
}

func (s *PostgresStore) ListAutomationRefs(ctx context.Context) ([]*models.AutomationRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT profile_id, automation_id, profile_name, created_at
		 FROM automation_refs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list automation refs: %w", err)
	}
	defer rows.Close()

	var refs []*models.AutomationRef
	for rows.Next() {
		var ref models.AutomationRef
		if err := rows.Scan(&ref.ProfileID, &ref.AutomationID, &ref.ProfileName, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan automation ref: %w", err)
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) DeleteAutomationRefs(ctx context.Context, profileIDs []uuid.UUID) error {
	if len(profileIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM automation_refs WHERE profile_id = ANY($1)`, profileIDs)
	if err != nil {
		return fmt.Errorf("delete automation refs: %w", err)
	}
	return nil
}

// --- Pending jobs ---

func (s *PostgresStore) UpsertPendingJob(ctx context.Context, job *models.PendingJob) error {
	details, err := json.Marshal(job.Details)
	if err != nil {
		return fmt.Errorf("marshal pending job details: %w", err)
	}
	resume, err := json.Marshal(job.Resume)
	if err != nil {
		return fmt.Errorf("marshal pending job resume: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_jobs (profile_id, profile_name, job_url, details, resume, attempts, enqueued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (profile_id, job_url) DO UPDATE SET
		   profile_name = EXCLUDED.profile_name,
		   details = EXCLUDED.details,
		   resume = EXCLUDED.resume,
		   attempts = EXCLUDED.attempts`,
		job.ProfileID, job.ProfileName, job.JobURL, details, resume, job.Attempts, job.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("upsert pending job: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePendingJob(ctx context.Context, profileID uuid.UUID, jobURL string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_jobs WHERE profile_id = $1 AND job_url = $2`, profileID, jobURL)
	if err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPendingJobs(ctx context.Context) ([]*models.PendingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT profile_id, profile_name, job_url, details, resume, attempts, enqueued_at
		 FROM pending_jobs ORDER BY enqueued_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PendingJob
	for rows.Next() {
		var (
			job     models.PendingJob
			details []byte
			resume  []byte
		)
		if err := rows.Scan(&job.ProfileID, &job.ProfileName, &job.JobURL, &details, &resume, &job.Attempts, &job.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		if err := json.Unmarshal(details, &job.Details); err != nil {
			return nil, fmt.Errorf("unmarshal pending job details: %w", err)
		}
		if err := json.Unmarshal(resume, &job.Resume); err != nil {
			return nil, fmt.Errorf("unmarshal pending job resume: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CountPendingJobs(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pending_jobs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeletePendingJobsForProfiles(ctx context.Context, profileIDs []uuid.UUID) error {
	if len(profileIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_jobs WHERE profile_id = ANY($1)`, profileIDs)
	if err != nil {
		return fmt.Errorf("delete pending jobs for profiles: %w", err)
	}
	return nil
}

// --- Job snapshots ---

func (s *PostgresStore) UpsertJobSnapshot(ctx context.Context, snap *models.JobSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_snapshots (job_url, title, company, source, cached_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_url) DO UPDATE SET
		   title = EXCLUDED.title,
		   company = EXCLUDED.company,
		   source = EXCLUDED.source,
		   cached_at = EXCLUDED.cached_at`,
		snap.JobURL, snap.Title, snap.Company, snap.Source, snap.CachedAt)
	if err != nil {
		return fmt.Errorf("upsert job snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJobSnapshots(ctx context.Context) ([]*models.JobSnapshot, error) {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresStore) DeleteJobSnapshots(ctx context.Context, jobURLs []string) error {
	if len(jobURLs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM job_snapshots WHERE job_url = ANY($1)`, jobURLs)
	if err != nil {
		return fmt.Errorf("delete job snapshots: %w", err)
	}
	return nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
