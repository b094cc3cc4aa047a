package core

import (
	"context"
	"database/sql"
	"regexp"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		PingContext(ctx context.Context) error
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
		Close() error
	}
)

var orderingFieldRegex = regexp.MustCompile(`^[a-z_]+$`)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings keeps the orderings whose field is in allowed, in their original order.
func CleanOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if !orderingFieldRegex.MatchString(ord.Field) {
			continue
		}
		for _, fld := range allowed {
			if ord.Field == fld {
				cleaned = append(cleaned, ord)
				break
			}
		}
	}
	return cleaned
}

// Pagination is a limit/offset window; a zero Limit means "no limit".
type Pagination struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

func (p *Pagination) Clean(maxLimit int) {
	if p.Limit < 0 {
		p.Limit = 0
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}
