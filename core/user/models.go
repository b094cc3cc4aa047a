package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

type User struct {
	ID           string    `json:"id"`
	AgencyID     string    `json:"agency_id,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	return rbac.HasRolePrefix(u.Roles, prefix)
}

func (u *User) IsPlatformAdmin() bool {
	return u.RoleStartsWith(rbac.RolePlatform)
}

func (u *User) IsLearner() bool {
	return u.RoleStartsWith(rbac.RoleLearner)
}

func (u *User) IsCoach() bool {
	return u.RoleStartsWith(rbac.RoleCoach)
}

func (u *User) IsMentor() bool {
	return u.RoleStartsWith(rbac.RoleMentor)
}

// Actor returns the principal permissions are checked for when u is authenticated.
func (u User) Actor() rbac.Actor {
	return rbac.Actor{
		ID:       u.ID,
		AgencyID: u.AgencyID,
		TenantID: u.TenantID,
		Roles:    u.Roles,
	}
}

// Resource returns u as the object of a permission check; a user owns themselves.
func (u User) Resource() rbac.Resource {
	return rbac.Resource{
		AgencyID: u.AgencyID,
		TenantID: u.TenantID,
		OwnerIDs: []string{u.ID},
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	AgencyID        string   `json:"agency_id" validate:"omitempty,uuid"`
	TenantID        string   `json:"tenant_id" validate:"omitempty,uuid"`
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.AgencyID = core.CleanString(nu.AgencyID, true /* lower */)
	nu.TenantID = core.CleanString(nu.TenantID, true /* lower */)
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Roles = core.UniqueStrings(nu.Roles)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// AdminOnly reports whether uu changes a field only user managers may change.
func (uu *UpdateUser) AdminOnly(origUsr User) bool {
	return uu.IsActive != nil ||
		uu.Roles != nil ||
		(uu.Username != "" && uu.Username != origUsr.Username) ||
		(uu.Email != "" && uu.Email != origUsr.Email)
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if uu.Roles != nil {
		uu.Roles = core.UniqueStrings(uu.Roles)
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	TenantID    string    `query:"tenant_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.TenantID == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TenantID = core.CleanString(qf.TenantID, true /* lower */)
}

// GetFilter identifies a single User; the first non-empty field is used.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}

// OrderingFields are the fields users can be ordered by.
var OrderingFields = []string{"name", "username", "email", "is_active", "created_at", "updated_at", "last_login"}
