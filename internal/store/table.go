package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/astroulette/backend/internal/dbx"
)

type scanner interface {
	Scan(dest ...any) error
}

// schema describes how an entity maps onto its table. columns excludes id
// and lists the columns in the order values returns them.
type schema[T any, P any] struct {
	table   string
	columns []string
	scan    func(row scanner) (*T, error)
	values  func(rec *T) []any
	id      func(rec *T) *int64
	apply   func(rec *T, patch P)
	// cascade runs, in order, before a row is deleted. Each takes the row id as $1.
	cascade []string
}

// Table is a typed gateway over one entity table. T is the entity and P the
// partial update applied by Update.
type Table[T any, P any] struct {
	conn   dbx.DBTX
	schema schema[T, P]
}

// Filter restricts ReadAll to rows whose column equals a value.
type Filter struct {
	column string
	value  any
}

func ByUser(id int64) Filter { return Filter{column: "user_id", value: id} }
func ByCharacter(id int64) Filter { return Filter{column: "character_id", value: id} }
func ByThread(id int64) Filter { return Filter{column: "thread_id", value: id} }
func ByGenerator(id int64) Filter { return Filter{column: "generated_by", value: id} }
func ByEmail(email string) Filter { return Filter{column: "email", value: email} }
func ByRole(role Role) Filter { return Filter{column: "role", value: string(role)} }
func ByStatus(s UserStatus) Filter { return Filter{column: "status", value: string(s)} }
func ByMessageRole(r MessageRole) Filter { return Filter{column: "role", value: string(r)} }

func (t *Table[T, P]) selectColumns() string {
	return "id, " + strings.Join(t.schema.columns, ", ")
}

// write runs fn in a fresh transaction, or in the caller's when the table is
// already bound to one.
func (t *Table[T, P]) write(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db, ok := t.conn.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, fn)
	}
	return fn(ctx, t.conn)
}

// Create inserts rec and sets its id.
func (t *Table[T, P]) Create(ctx context.Context, rec *T) (*T, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		t.schema.table, strings.Join(t.schema.columns, ", "), placeholders(1, len(t.schema.columns)))

	err := t.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return tx.QueryRowContext(ctx, query, t.schema.values(rec)...).Scan(t.schema.id(rec))
	})
	if err != nil {
		return nil, translate("create", t.schema.table, nil, err)
	}
	return rec, nil
}

func (t *Table[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	return t.get(ctx, t.conn, id)
}

func (t *Table[T, P]) get(ctx context.Context, db dbx.DBTX, id int64) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.selectColumns(), t.schema.table)
	rec, err := t.schema.scan(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate("read", t.schema.table, id, err)
	}
	return rec, nil
}

// ReadAll returns every row matching all filters, ordered by id.
func (t *Table[T, P]) ReadAll(ctx context.Context, filters ...Filter) ([]T, error) {
	var (
		where []string
		args  []any
	)
	for i, f := range filters {
		where = append(where, fmt.Sprintf("%s = $%d", f.column, i+1))
		args = append(args, f.value)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", t.selectColumns(), t.schema.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	return t.query(ctx, "read", query, args...)
}

func (t *Table[T, P]) query(ctx context.Context, op, query string, args ...any) ([]T, error) {
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(op, t.schema.table, nil, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		rec, err := t.schema.scan(rows)
		if err != nil {
			return nil, translate(op, t.schema.table, nil, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, t.schema.table, nil, err)
	}
	return out, nil
}

func (t *Table[T, P]) queryOne(ctx context.Context, op, query string, args ...any) (*T, error) {
	rec, err := t.schema.scan(t.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translate(op, t.schema.table, nil, err)
	}
	return rec, nil
}

// Update applies patch to the row with the given id and returns the result.
func (t *Table[T, P]) Update(ctx context.Context, id int64, patch P) (*T, error) {
	sets := make([]string, len(t.schema.columns))
	for i, c := range t.schema.columns {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		t.schema.table, strings.Join(sets, ", "), len(t.schema.columns)+1)

	var out *T
	err := t.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := t.get(ctx, tx, id)
		if err != nil {
			return err
		}
		t.schema.apply(rec, patch)
		args := append(t.schema.values(rec), id)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, translate("update", t.schema.table, id, err)
	}
	return out, nil
}

// Delete removes the row with the given id and returns it as it was.
func (t *Table[T, P]) Delete(ctx context.Context, id int64) (*T, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.schema.table)

	var out *T
	err := t.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := t.get(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, stmt := range t.schema.cascade {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, translate("delete", t.schema.table, id, err)
	}
	return out, nil
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}
