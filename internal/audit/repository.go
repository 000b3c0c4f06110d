package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Record is one finished command.
type Record struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Device      string    `json:"device"`
	Command     string    `json:"command,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at"`
	Duration    int64     `json:"duration_ms"`
}

// Filter controls which records List returns.
type Filter struct {
	Device  string // optional: exact device name
	Command string // optional: exact command tag
	Status  string // optional: wire status name, e.g. "ERROR_UNKNOWN"
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is one page of records, newest first.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository reads and writes the command log.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository is the SQLite-backed Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository over db. The command_log table
// must already exist (see the migrations package).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts rec, filling ID and FinishedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = rec.FinishedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log
		 (id, request_id, device, command, kind, status, error, submitted_at, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Device, rec.Command, rec.Kind, rec.Status,
		nullableString(rec.Error),
		formatTime(rec.SubmittedAt),
		nullableTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
		rec.Duration,
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}
	return nil
}

// List returns records matching filter, most recently finished first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if filter.Device != "" {
		conditions = append(conditions, "device = ?")
		args = append(args, filter.Device)
	}
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // WHERE built from fixed column names with ? placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command records: %w", err)
	}

	query := `SELECT id, request_id, device, command, kind, status, error,
	          submitted_at, started_at, finished_at, duration_ms
	          FROM command_log ` + where + ` ORDER BY finished_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // as above
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command records: %w", err)
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes records that finished before the cutoff and returns how
// many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM command_log WHERE finished_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning command records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning command records: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                 Record
		errText, started    sql.NullString
		submitted, finished string
	)
	if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Device, &rec.Command, &rec.Kind,
		&rec.Status, &errText, &submitted, &started, &finished, &rec.Duration); err != nil {
		return Record{}, fmt.Errorf("scanning command record: %w", err)
	}

	rec.Error = errText.String

	var err error
	if rec.SubmittedAt, err = parseTime(submitted); err != nil {
		return Record{}, err
	}
	if rec.FinishedAt, err = parseTime(finished); err != nil {
		return Record{}, err
	}
	if started.Valid {
		if rec.StartedAt, err = parseTime(started.String); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// timeLayout sorts lexically in the same order as the instants it encodes,
// which the ORDER BY and Prune comparisons rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing command record timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
