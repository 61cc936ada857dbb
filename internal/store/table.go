package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sadopc/done/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// schema maps one entity type onto its table. columns[0] is the primary key
// and values must return arguments in columns order.
type schema[T any] struct {
	name    string
	kind    string
	columns []string
	orderBy string
	id      func(T) string
	values  func(T) []any
	scan    func(scanner) (T, error)
}

// Table is a keyed collection of whole records. Operations on a Table
// obtained from a Tx take part in that transaction.
type Table[T any] struct {
	q   querier
	def schema[T]
}

func (t *Table[T]) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.def.columns, ", "), t.def.name)
}

// Get returns the record with the given id or a model.NotFoundError.
func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	row := t.q.QueryRowContext(ctx, t.selectSQL()+" WHERE id = ?", id)
	v, err := t.def.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return v, model.NotFoundError{Kind: t.def.kind, ID: id}
	}
	if err != nil {
		return v, persistErr("get "+t.def.kind, err)
	}
	return v, nil
}

// All returns every record in the table's natural order.
func (t *Table[T]) All(ctx context.Context) ([]T, error) {
	return t.query(ctx, t.selectSQL()+" ORDER BY "+t.def.orderBy)
}

// Where returns the records whose column equals value.
func (t *Table[T]) Where(ctx context.Context, column string, value any) ([]T, error) {
	if !slices.Contains(t.def.columns, column) {
		return nil, fmt.Errorf("%s has no column %q", t.def.name, column)
	}
	return t.query(ctx, t.selectSQL()+" WHERE "+column+" = ? ORDER BY "+t.def.orderBy, value)
}

// Count returns the number of records.
func (t *Table[T]) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.def.name).Scan(&n); err != nil {
		return 0, persistErr("count "+t.def.name, err)
	}
	return n, nil
}

func (t *Table[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list "+t.def.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := t.def.scan(rows)
		if err != nil {
			return nil, persistErr("scan "+t.def.kind, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list "+t.def.name, err)
	}
	return out, nil
}

func (t *Table[T]) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.def.columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.def.name, strings.Join(t.def.columns, ", "), marks)
}

func (t *Table[T]) assignments() string {
	sets := make([]string, 0, len(t.def.columns)-1)
	for _, c := range t.def.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return strings.Join(sets, ", ")
}

// Put inserts v or replaces the record with the same id.
func (t *Table[T]) Put(ctx context.Context, v T) error {
	query := t.insertSQL() + " ON CONFLICT(id) DO UPDATE SET " + t.assignments()
	if _, err := t.q.ExecContext(ctx, query, t.def.values(v)...); err != nil {
		return persistErr("put "+t.def.kind, err)
	}
	return nil
}

// Add inserts v and fails with model.ErrDuplicateKey if the id is taken.
func (t *Table[T]) Add(ctx context.Context, v T) error {
	res, err := t.q.ExecContext(ctx, t.insertSQL()+" ON CONFLICT(id) DO NOTHING", t.def.values(v)...)
	if err != nil {
		return persistErr("add "+t.def.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("add "+t.def.kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", model.ErrDuplicateKey, t.def.kind, t.def.id(v))
	}
	return nil
}

// Update replaces an existing record. Updating a missing id is a no-op.
func (t *Table[T]) Update(ctx context.Context, v T) error {
	sets := make([]string, 0, len(t.def.columns)-1)
	for _, c := range t.def.columns[1:] {
		sets = append(sets, c+" = ?")
	}
	args := t.def.values(v)
	args = append(args[1:], args[0])
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.def.name, strings.Join(sets, ", "))
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return persistErr("update "+t.def.kind, err)
	}
	return nil
}

// Delete removes the record with the given id, if any.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	if _, err := t.q.ExecContext(ctx, "DELETE FROM "+t.def.name+" WHERE id = ?", id); err != nil {
		return persistErr("delete "+t.def.kind, err)
	}
	return nil
}

// BulkPut upserts every record. Outside a transaction the batch is
// still atomic.
func (t *Table[T]) BulkPut(ctx context.Context, vs []T) error {
	if len(vs) == 0 {
		return nil
	}
	return t.batch(ctx, func(tt *Table[T]) error {
		for _, v := range vs {
			if err := tt.Put(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkDelete removes every listed id; unknown ids are ignored.
func (t *Table[T]) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return t.batch(ctx, func(tt *Table[T]) error {
		for _, id := range ids {
			if err := tt.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Table[T]) batch(ctx context.Context, fn func(*Table[T]) error) error {
	db, ok := t.q.(*sql.DB)
	if !ok {
		return fn(t)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	if err := fn(&Table[T]{q: tx, def: t.def}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}
