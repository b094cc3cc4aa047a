// Package sqlxrepos implements the repositories on postgres with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

// uniqueViolation is the postgres error code of unique constraint violations.
const uniqueViolation = "23505"

func newID() string {
	return uuid.New().String()
}

// validID reports whether id can be compared to a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// trapNoRowsErr maps "no rows" errors to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return pkgerrors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	return core.TimePtr(t.Time)
}

// query builds a SELECT statement with "?" placeholders, rebound before execution.
type query struct {
	conds []string
	args  []interface{}
}

func (q *query) where(cond string, args ...interface{}) {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
}

// visible restricts q to the rows vis allows. With an own scope, a row is visible when
// any of ownerConds holds; each of them takes the user ID as single argument.
// An empty tenantCol means tenant scopes only check the agency.
func (q *query) visible(vis rbac.Visibility, agencyCol, tenantCol string, ownerConds ...string) {
	switch vis.Scope {
	case rbac.ScopeGlobal:
	case rbac.ScopeAgency:
		q.where(agencyCol+" = ?", vis.AgencyID)
	case rbac.ScopeTenant:
		if tenantCol == "" {
			q.where(agencyCol+" = ?", vis.AgencyID)
			return
		}
		q.where(agencyCol+" = ? AND "+tenantCol+" = ?", vis.AgencyID, vis.TenantID)
	case rbac.ScopeOwn:
		if len(ownerConds) == 0 || !validID(vis.UserID) {
			q.where("FALSE")
			return
		}
		args := make([]interface{}, len(ownerConds))
		for i := range ownerConds {
			args[i] = vis.UserID
		}
		q.where("("+strings.Join(ownerConds, " OR ")+")", args...)
	default:
		q.where("FALSE")
	}
}

func (q *query) sql(base, orderBy string) string {
	var b strings.Builder
	b.WriteString(base)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	return b.String()
}

// selectRows runs q on exec and scans the rows into dest.
func (q *query) selectRows(ctx context.Context, exec sqlx.ExtContext, dest interface{}, base, orderBy string) error {
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(q.sql(base, orderBy)), q.args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches strings containing search.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

// prefixPattern matches strings starting with prefix.
func prefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func orderings(ords []core.DBOrdering) string {
	list := make([]string, 0, len(ords))
	for _, ord := range ords {
		list = append(list, ord.String())
	}
	return strings.Join(list, ", ")
}

// inTx runs fn in a transaction of db, committed when fn succeeds.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return pkgerrors.Wrap(tx.Commit(), "committing transaction")
}
