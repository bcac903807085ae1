package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"satis/internal/core"
	"satis/internal/ledger"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps keep lexical and chronological order equal.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository is the persistent ledger store.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool opens the file.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// stamp returns a write timestamp later than any this repository handed
// out before.
func (r *SQLiteRepository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	if !now.After(r.last) {
		now = r.last.Add(time.Nanosecond)
	}
	r.last = now
	return now
}

const selectSale = `SELECT id, sale_date, category, product_name, payment_method, amount, created_at, updated_at FROM sales`

func (r *SQLiteRepository) FetchByDate(ctx context.Context, date core.Date) ([]core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		selectSale+` WHERE owner = ? AND sale_date = ? ORDER BY created_at DESC, id DESC`,
		sess.Owner, date.String())
	if err != nil {
		return nil, fmt.Errorf("query sales for %s: %w", date, err)
	}
	defer rows.Close()

	var out []core.Sale
	for rows.Next() {
		s, err := scanSale(ctx, rows.Scan, true)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales for %s: %w", date, err)
	}
	return out, nil
}

func (r *SQLiteRepository) FetchByDateRange(ctx context.Context, rng core.DateRange) ([]core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sale_date, category, product_name, payment_method, amount FROM sales
		 WHERE owner = ? AND sale_date >= ? AND sale_date <= ?
		 ORDER BY sale_date DESC, created_at DESC, id DESC`,
		sess.Owner, rng.Start.String(), rng.End.String())
	if err != nil {
		return nil, fmt.Errorf("query sales for %s: %w", rng, err)
	}
	defer rows.Close()

	var out []core.Sale
	for rows.Next() {
		s, err := scanSale(ctx, rows.Scan, false)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales for %s: %w", rng, err)
	}
	return out, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, f core.SaleFields) (core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return core.Sale{}, err
	}
	ts := r.stamp().Format(timestampLayout)

	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO sales (owner, sale_date, category, product_name, payment_method, amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		sess.Owner, f.Date.String(), string(f.Category), f.ProductName, string(f.PaymentMethod), f.Amount.String(), ts, ts,
	).Scan(&id)
	if err != nil {
		return core.Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	slog.InfoContext(ctx, "Sale saved to SQLite",
		"id", id,
		"date", f.Date.String(),
		"category", f.Category,
		"amount", f.Amount.String())

	created, _ := time.Parse(timestampLayout, ts)
	return core.Sale{
		ID:         strconv.FormatInt(id, 10),
		SaleFields: f,
		CreatedAt:  created,
		UpdatedAt:  created,
	}, nil
}

func (r *SQLiteRepository) Replace(ctx context.Context, id string, f core.SaleFields) (core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return core.Sale{}, err
	}
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return core.Sale{}, ledger.ErrNotFound
	}
	ts := r.stamp().Format(timestampLayout)

	var createdAt string
	err = r.db.QueryRowContext(ctx,
		`UPDATE sales SET sale_date = ?, category = ?, product_name = ?, payment_method = ?, amount = ?, updated_at = ?
		 WHERE id = ? AND owner = ? RETURNING created_at`,
		f.Date.String(), string(f.Category), f.ProductName, string(f.PaymentMethod), f.Amount.String(), ts,
		rowID, sess.Owner,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sale{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Sale{}, fmt.Errorf("update sale %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Sale updated in SQLite", "id", rowID)

	created, _ := time.Parse(timestampLayout, createdAt)
	updated, _ := time.Parse(timestampLayout, ts)
	return core.Sale{ID: id, SaleFields: f, CreatedAt: created, UpdatedAt: updated}, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return err
	}
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ledger.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ? AND owner = ?`, rowID, sess.Owner)
	if err != nil {
		return fmt.Errorf("delete sale %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sale %s: %w", id, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	slog.InfoContext(ctx, "Sale deleted from SQLite", "id", rowID)
	return nil
}

// scanSale maps a row onto core.Sale. Range queries omit timestamps.
func scanSale(ctx context.Context, scan func(...any) error, withTimestamps bool) (core.Sale, error) {
	var (
		id                                       int64
		date, category, product, payment, amount string
		createdAt, updatedAt                     string
	)
	dest := []any{&id, &date, &category, &product, &payment, &amount}
	if withTimestamps {
		dest = append(dest, &createdAt, &updatedAt)
	}
	if err := scan(dest...); err != nil {
		return core.Sale{}, fmt.Errorf("scan sale: %w", err)
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Sale{}, fmt.Errorf("sale %d has invalid date %q: %w", id, date, err)
	}
	money, coerced := core.CoerceAmount(amount)
	if coerced {
		slog.WarnContext(ctx, "Stored sale amount is not a number, reading as zero",
			"id", id, "amount", amount)
	}

	s := core.Sale{
		ID: strconv.FormatInt(id, 10),
		SaleFields: core.SaleFields{
			Date:          d,
			Category:      core.Category(category),
			ProductName:   product,
			PaymentMethod: core.PaymentMethod(payment),
			Amount:        money,
		},
		AmountCoerced: coerced,
	}
	if withTimestamps {
		s.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
		s.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	}
	return s, nil
}
