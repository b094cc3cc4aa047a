package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
)

type userRow struct {
	ID           string         `db:"id"`
	AgencyID     null.String    `db:"agency_id"`
	TenantID     null.String    `db:"tenant_id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		AgencyID:     nullString(usr.AgencyID),
		TenantID:     nullString(usr.TenantID),
		Name:         usr.Name,
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:           r.ID,
		AgencyID:     r.AgencyID.String,
		TenantID:     r.TenantID.String,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time.UTC()
	}
	return usr
}

const userColumns = "id, agency_id, tenant_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// getExec returns the transaction passed by the service, if any.
func (repo *userRepository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return repo.db
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	var q query
	q.where("(username = ? OR email = ?)", nullString(username), nullString(email))
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q.where("NOT (id::text = ANY(?))", pq.Array(ids))
	}

	var rows []userRow
	if err := q.selectRows(ctx, repo.getExec(exec), &rows, "SELECT "+userColumns+" FROM users", ""); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if username != "" && r.Username.String == username {
			return user.ErrUsernameExists
		}
		if email != "" && r.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = newID()
	row := newUserRow(usr)
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec),
		"INSERT INTO users ("+userColumns+") VALUES "+
			"(:id, :agency_id, :tenant_id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)",
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(
	ctx context.Context,
	vis rbac.Visibility,
	filter *user.QueryFilter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]user.User, error) {
	var q query
	q.visible(vis, "agency_id", "tenant_id", "id = ?")

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := likePattern(filter.Search)
			q.where("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			conds := make([]string, 0, len(filter.Roles))
			args := make([]interface{}, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				conds = append(conds, "EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ?)")
				args = append(args, prefixPattern(role))
			}
			q.where("("+strings.Join(conds, " OR ")+")", args...)
		}
		if filter.IsActive != nil {
			q.where("is_active = ?", *filter.IsActive)
		}
		if filter.TenantID != "" {
			q.where("tenant_id::text = ?", filter.TenantID)
		}
		if !filter.CreatedFrom.IsZero() {
			q.where("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			q.where("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	// newest first by default
	orderBy := orderings(core.CleanOrderings(ordering, user.OrderingFields...))
	if orderBy == "" {
		orderBy = "created_at DESC"
	}

	var rows []userRow
	if err := q.selectRows(ctx, repo.getExec(exec), &rows, "SELECT "+userColumns+" FROM users", orderBy); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var q query
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q.where("id = ?", filter.ID)
	case filter.Username != "":
		q.where("username = ?", filter.Username)
	case filter.Email != "":
		q.where("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		q.where("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	ext := repo.getExec(exec)
	var row userRow
	if err := sqlx.GetContext(ctx, ext, &row, ext.Rebind(q.sql("SELECT "+userColumns+" FROM users", "")), q.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := newUserRow(usr)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec),
		`UPDATE users SET agency_id = :agency_id, tenant_id = :tenant_id, name = :name, username = :username,
		email = :email, is_active = :is_active, roles = :roles, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login WHERE id = :id`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.user(), nil
}

func (repo *userRepository) DeleteUsers(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM users WHERE id::text = ANY($1)", pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
