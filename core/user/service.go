package user

import (
	"context"
	"errors"
	"net/mail"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("user not found")
	ErrEmailExists         = errors.New("a user with this email already exists")
	ErrUsernameExists      = errors.New("a user with this username already exists")
	ErrDeleteSelf          = core.NewForbiddenError("you cannot delete yourself")
	ErrHigherPriority      = core.NewForbiddenError("not enough rights to manage this user")
	errNoPermsToSetRoles   = "not enough rights to set these roles"
	errAgencyRequired      = "this field is required"
	errTenantAgencyMissing = "tenant does not belong to this agency"
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user
		// (excluding excludedUsers) holds username or email.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields, within vis.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, vis rbac.Visibility, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsers(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(ctx context.Context, actor rbac.Actor, nu NewUser) (User, error)
		Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Get(ctx context.Context, actor rbac.Actor, id string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		// GetMany returns the users of ids that exist, in no particular order.
		GetMany(ctx context.Context, ids ...string) ([]User, error)
		Update(ctx context.Context, actor rbac.Actor, usr User, uu UpdateUser) (User, error)
		Delete(ctx context.Context, actor rbac.Actor, ids ...string) error
		// CheckActive returns tenant.ErrInactive when usr, its agency or its tenant is deactivated.
		CheckActive(ctx context.Context, usr User) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		conf      *core.Config
		repo      Repository
		tenantSvc tenant.Service
		mailSvc   core.EmailService
		logger    core.Logger
		clock     clockwork.Clock
		tokenGen  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	tenantSvc tenant.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	clock clockwork.Clock,
) Service {
	return &service{
		conf:      conf,
		repo:      repo,
		tenantSvc: tenantSvc,
		mailSvc:   mailSvc,
		logger:    logger,
		clock:     clock,
		tokenGen:  newTokenGenerator(conf, clock),
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// checkMembership makes sure the agency/tenant pair of a new user is coherent:
// non-platform users need an agency and a tenant must belong to the user's agency.
func (svc *service) checkMembership(ctx context.Context, nu NewUser) error {
	if nu.AgencyID == "" {
		if !(len(nu.Roles) > 0 && rbac.HasRolePrefix(nu.Roles, rbac.RolePlatform)) {
			return core.NewValidationError(nil, core.FieldError{Field: "agency_id", Error: errAgencyRequired})
		}
		if nu.TenantID != "" {
			return core.NewValidationError(nil, core.FieldError{Field: "tenant_id", Error: errTenantAgencyMissing})
		}
		return nil
	}
	if nu.TenantID == "" {
		return nil
	}
	tnt, err := svc.tenantSvc.GetTenantByID(ctx, nu.TenantID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewValidationError(nil, core.FieldError{Field: "tenant_id", Error: tenant.ErrTenantNotFound.Error()})
		}
		return pkgerrors.Wrap(err, "getting tenant")
	}
	if tnt.AgencyID != nu.AgencyID {
		return core.NewValidationError(nil, core.FieldError{Field: "tenant_id", Error: errTenantAgencyMissing})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor rbac.Actor, nu NewUser) (User, error) {
	// new users land in the actor's agency/tenant unless told otherwise
	if nu.AgencyID == "" && !actor.IsPlatformAdmin() {
		nu.AgencyID = actor.AgencyID
		if nu.TenantID == "" {
			nu.TenantID = actor.TenantID
		}
	}
	if !actor.Can(rbac.UsersWrite, rbac.Resource{AgencyID: nu.AgencyID, TenantID: nu.TenantID}) {
		return User{}, rbac.ErrNoGrant
	}
	// actor cannot set a role > their own max role
	if !actor.CanAssignRoles(nu.Roles) {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}
	if err := svc.checkMembership(ctx, nu); err != nil {
		return User{}, err
	}

	now := svc.clock.Now().UTC()
	usr := User{
		AgencyID:  nu.AgencyID,
		TenantID:  nu.TenantID,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	vis, err := actor.Visibility(rbac.UsersRead)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryUsers(ctx, vis, filter, core.CleanOrderings(ordering, OrderingFields...))
}

func (svc *service) Get(ctx context.Context, actor rbac.Actor, id string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if !actor.Can(rbac.UsersRead, usr.Resource()) {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) GetMany(ctx context.Context, ids ...string) ([]User, error) {
	ids = core.UniqueStrings(ids)
	users := make([]User, 0, len(ids))
	for _, id := range ids {
		usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return nil, pkgerrors.Wrap(err, "getting user")
		}
		users = append(users, usr)
	}
	return users, nil
}

// checkManage makes sure actor may manage target: write access and a max role not lower than target's.
func checkManage(actor rbac.Actor, target User) error {
	if !actor.Can(rbac.UsersWrite, target.Resource()) {
		return rbac.ErrNoGrant
	}
	if rbac.MaxRolePriority(target.Roles) > rbac.MaxRolePriority(actor.Roles) {
		return ErrHigherPriority
	}
	return nil
}

func (svc *service) Update(ctx context.Context, actor rbac.Actor, usr User, uu UpdateUser) (User, error) {
	if actor.ID != usr.ID || uu.AdminOnly(usr) {
		if err := checkManage(actor, usr); err != nil {
			return User{}, err
		}
	}
	if uu.Roles != nil {
		// actor cannot set a role > their own max role
		if !actor.CanAssignRoles(uu.Roles) {
			return User{}, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
		}
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		if actor.ID == usr.ID && !*uu.IsActive {
			return User{}, rbac.ErrNoGrant
		}
		usr.IsActive = *uu.IsActive
	}
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, pkgerrors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = svc.clock.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, actor rbac.Actor, ids ...string) error {
	ids = core.UniqueStrings(ids)
	visible := make([]string, 0, len(ids))
	for _, id := range ids {
		// Say No to Suicide! actor cannot delete themselves
		if id == actor.ID {
			return ErrDeleteSelf
		}
		usr, err := svc.Get(ctx, actor, id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return pkgerrors.Wrap(err, "getting user")
		}
		if err = checkManage(actor, usr); err != nil {
			return err
		}
		visible = append(visible, usr.ID)
	}
	if len(visible) == 0 {
		return nil
	}
	return svc.repo.DeleteUsers(ctx, visible)
}

func (svc *service) CheckActive(ctx context.Context, usr User) error {
	if !usr.IsActive {
		return tenant.ErrInactive
	}
	return svc.tenantSvc.CheckActive(ctx, usr.AgencyID, usr.TenantID)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = svc.clock.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) passwordResetMessage(usr User) (*core.EmailMessage, error) {
	token, err := svc.tokenGen.makeToken(usr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "making token")
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	}, nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	msg, err := svc.passwordResetMessage(usr)
	if err != nil {
		svc.logger.Error("preparing password reset mail", err, usr)
		return
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalid := core.NewValidationError(errInvalidToken)

	uid, err := DecodeUID(data.UID)
	if err != nil {
		return invalid
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return invalid
		}
		return pkgerrors.Wrap(err, "getting user")
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return pkgerrors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = svc.clock.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return pkgerrors.Wrap(err, "updating user")
	}
	return nil
}
