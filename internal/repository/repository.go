package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/nzskirting/orderdesk/internal/database"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDatabase = errors.New("database error")
)

// Change is one column assignment in a partial update
type Change struct {
	Column string
	Value  interface{}
}

// ListFilter narrows admin list queries
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// buildUpdate renders a single-statement UPDATE ... RETURNING for the given
// changes. Columns must be present in allowed.
func buildUpdate(table, returning string, allowed map[string]bool, id string, changes []Change) (string, []interface{}, error) {
	sets := make([]string, 0, len(changes))
	args := make([]interface{}, 0, len(changes)+1)

	for _, c := range changes {
		if !allowed[c.Column] {
			return "", nil, fmt.Errorf("column %q is not updatable on %s", c.Column, table)
		}
		args = append(args, c.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Column, len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		table, strings.Join(sets, ", "), len(args), returning)

	return query, args, nil
}

// withTx runs fn inside a transaction, rolling back when it fails
func withTx(ctx context.Context, db *database.Database, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}
