package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowlens.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return storeErr("migrate", err)
	}
	return nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeErr("vacuum", err)
	}
	return nil
}

// SaveReport inserts rec, replacing any record with the same id.
func (s *LibSQLStore) SaveReport(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Report == nil {
		return schema.NewError(schema.ErrCodeValidation, "save report: record has no report")
	}
	if rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "save report: record has no id")
	}
	body, err := json.Marshal(rec.Report)
	if err != nil {
		return storeErr("marshal report", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, flow_label, process_type, source, fingerprint, row_count, error_count, warning_count, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET flow_label=excluded.flow_label, process_type=excluded.process_type,
		   source=excluded.source, fingerprint=excluded.fingerprint, row_count=excluded.row_count,
		   error_count=excluded.error_count, warning_count=excluded.warning_count, report=excluded.report`,
		rec.ID, rec.FlowLabel, nullStr(rec.ProcessType), nullStr(rec.Source), nullStr(rec.Fingerprint),
		rec.RowCount, rec.ErrorCount, rec.WarningCount, string(body), timeOrNow(rec.CreatedAt),
	)
	if err != nil {
		return storeErr("save report", err)
	}
	return nil
}

const summaryColumns = "id, flow_label, process_type, source, fingerprint, row_count, error_count, warning_count, created_at"

// GetReport loads the record with the given id.
func (s *LibSQLStore) GetReport(ctx context.Context, id string) (*Record, error) {
	rec := &Record{}
	var body string
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+`, report FROM reports WHERE id = ?`, id)
	err := scanSummary(row, &rec.Summary, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("report", id)
	}
	if err != nil {
		return nil, storeErr("get report", err)
	}

	rec.Report = &analysis.Report{}
	if err := json.Unmarshal([]byte(body), rec.Report); err != nil {
		return nil, storeErr("unmarshal report", err)
	}
	return rec, nil
}

// ListReports returns summaries matching filter, newest first.
func (s *LibSQLStore) ListReports(ctx context.Context, filter ReportFilter) ([]*Summary, error) {
	var where []string
	var args []any

	if filter.FlowLabel != "" {
		where = append(where, "LOWER(flow_label) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.FlowLabel)+"%")
	}
	if filter.ProcessType != "" {
		where = append(where, "process_type = ?")
		args = append(args, filter.ProcessType)
	}
	if filter.Fingerprint != "" {
		where = append(where, "fingerprint = ?")
		args = append(args, filter.Fingerprint)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT " + summaryColumns + " FROM reports"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list reports", err)
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		sum := &Summary{}
		if err := scanSummary(rows, sum); err != nil {
			return nil, storeErr("scan report", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list reports", err)
	}
	return out, nil
}

// DeleteReport removes the record with the given id.
func (s *LibSQLStore) DeleteReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete report", err)
	}
	return checkRowsAffected(res, "report", id)
}

// Prune deletes reports created before the cutoff.
func (s *LibSQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, storeErr("prune reports", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("prune reports", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSummary scans summaryColumns into sum, followed by any extra columns.
func scanSummary(row rowScanner, sum *Summary, extra ...any) error {
	var processType, source, fingerprint sql.NullString
	dest := []any{&sum.ID, &sum.FlowLabel, &processType, &source, &fingerprint,
		&sum.RowCount, &sum.ErrorCount, &sum.WarningCount, &sum.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	sum.ProcessType = processType.String
	sum.Source = source.String
	sum.Fingerprint = fingerprint.String
	return nil
}

// --- Helpers ---

func storeErr(op string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
