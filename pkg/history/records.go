package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stelatos/starkverify/pkg/api"
)

// ErrNotFound reports a job id with no ledger row.
var ErrNotFound = errors.New("no ledger entry for job")

// Record is one ledger row: a submitted verification job and the
// latest status observed for it.
type Record struct {
	JobID        string     `json:"job_id"`
	ClassHash    string     `json:"class_hash"`
	ContractName string     `json:"contract_name"`
	Network      string     `json:"network"`
	Status       string     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	PackageName  string     `json:"package_name,omitempty"`
	ScarbVersion string     `json:"scarb_version,omitempty"`
	CairoVersion string     `json:"cairo_version,omitempty"`
	DojoVersion  string     `json:"dojo_version,omitempty"`
}

// Store is the verification ledger. Safe for use from a single
// process; the CLI holds one open connection.
type Store struct {
	db *sql.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// terminalStatusSet matches the SQL NOT IN guards below. A row that
// reached one of these never leaves it.
const terminalStatusSet = `('Success', 'Fail', 'CompileFailed')`

func isTerminalStatus(status string) bool {
	return api.ParseJobStatus(status).IsTerminal()
}

// Insert records a freshly submitted job. SubmittedAt defaults to now.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.JobID) == "" {
		return errors.New("job id is required")
	}
	submittedAt := rec.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = api.StatusSubmitted.String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_history
			(job_id, class_hash, contract_name, network, status, submitted_at,
			 package_name, scarb_version, cairo_version, dojo_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.ClassHash, rec.ContractName, rec.Network, rec.Status,
		submittedAt.UTC().Format(time.RFC3339),
		nullable(rec.PackageName), nullable(rec.ScarbVersion),
		nullable(rec.CairoVersion), nullable(rec.DojoVersion))
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// UpdateStatus records a newer status observation for a job.
//
// A terminal status is frozen: once recorded, later observations
// (including replays of older non-terminal statuses) change nothing.
// completed_at is set exactly once, on the first terminal transition.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status string) error {
	var completedAt any
	if isTerminalStatus(status) {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE verification_history
		 SET status = ?,
		     completed_at = COALESCE(completed_at, ?)
		 WHERE job_id = ? AND status NOT IN `+terminalStatusSet,
		status, completedAt, jobID)
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	return nil
}

// GetByJobID returns the ledger entry for a job, or ErrNotFound.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE job_id = ?`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return rec, err
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	Status  string
	Network string
	Limit   int
}

// List returns ledger entries newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	query := selectColumns
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Network != "" {
		conds = append(conds, "network = ?")
		args = append(args, f.Network)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY submitted_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteOlderThan removes entries submitted more than the given
// number of days ago and returns the count removed.
func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("retention days must be >= 0, got %d", days)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_history WHERE submitted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old ledger entries: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAll wipes the ledger and returns the count removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verification_history`)
	if err != nil {
		return 0, fmt.Errorf("wipe ledger: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarizes the ledger for the history stats command.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'Success' THEN 1 ELSE 0 END), 0) as succeeded,
			COALESCE(SUM(CASE WHEN status IN ('Fail', 'CompileFailed') THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(SUM(CASE WHEN status NOT IN `+terminalStatusSet+` THEN 1 ELSE 0 END), 0) as pending
		 FROM verification_history`).Scan(&st.Total, &st.Succeeded, &st.Failed, &st.Pending)
	if err != nil {
		return Stats{}, fmt.Errorf("get ledger stats: %w", err)
	}
	return st, nil
}

// AverageVerificationSeconds returns the mean submit-to-complete time
// over the lastN most recent successes. The second return is false
// when fewer than minSamples completed successes exist; callers fall
// back to fixed stage estimates for ETA display.
func (s *Store) AverageVerificationSeconds(ctx context.Context, lastN, minSamples int) (float64, bool, error) {
	if lastN <= 0 {
		lastN = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT submitted_at, completed_at
		 FROM verification_history
		 WHERE status = 'Success' AND completed_at IS NOT NULL
		 ORDER BY submitted_at DESC LIMIT ?`, lastN)
	if err != nil {
		return 0, false, fmt.Errorf("query verification durations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var total float64
	var count int
	for rows.Next() {
		var submitted, completed string
		if err := rows.Scan(&submitted, &completed); err != nil {
			return 0, false, fmt.Errorf("scan verification duration: %w", err)
		}
		start, err1 := time.Parse(time.RFC3339, submitted)
		end, err2 := time.Parse(time.RFC3339, completed)
		if err1 != nil || err2 != nil || end.Before(start) {
			continue
		}
		total += end.Sub(start).Seconds()
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}

	if count < minSamples || count == 0 {
		return 0, false, nil
	}
	return total / float64(count), true, nil
}

const selectColumns = `SELECT job_id, class_hash, contract_name, network, status,
	submitted_at, completed_at, package_name, scarb_version, cairo_version, dojo_version
	FROM verification_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var submittedAt string
	var completedAt, pkg, scarb, cairo, dojo sql.NullString

	err := row.Scan(&rec.JobID, &rec.ClassHash, &rec.ContractName, &rec.Network,
		&rec.Status, &submittedAt, &completedAt, &pkg, &scarb, &cairo, &dojo)
	if err != nil {
		return Record{}, err
	}

	rec.SubmittedAt, err = time.Parse(time.RFC3339, submittedAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse submitted_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return Record{}, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}
	rec.PackageName = pkg.String
	rec.ScarbVersion = scarb.String
	rec.CairoVersion = cairo.String
	rec.DojoVersion = dojo.String
	return rec, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
