package main

import (
	"context"
	"errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
)

// addUser updates or creates an active admin user.User.
// Platform admins belong to no agency; agency admins belong to agencyID.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool, agencyID string) (user.User, error) {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	var roles []string
	if isAdmin {
		agencyID = ""
		roles = []string{rbac.RolePlatformAdmin}
	} else {
		if _, err := cli.tenantSvc.GetAgency(ctx, operator, agencyID); err != nil {
			return user.User{}, err
		}
		roles = []string{rbac.RoleAgencyAdmin}
	}

	now := cli.clock.Now().UTC()
	usr, err := cli.findUser(ctx, uname, email)
	switch {
	case errors.Is(err, user.ErrNotFound):
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
		if usr.Name == "" {
			usr.Name = email
		}
	case err != nil:
		return user.User{}, err
	}

	usr.AgencyID = agencyID
	usr.TenantID = ""
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	if usr.ID == "" {
		return cli.usrRepo.CreateUser(ctx, usr)
	}
	return cli.usrRepo.UpdateUser(ctx, usr)
}

// findUser returns the user with username uname, or else with email.
func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	if uname != "" {
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
		if !errors.Is(err, user.ErrNotFound) {
			return usr, err
		}
	}
	if email != "" {
		return cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	return user.User{}, user.ErrNotFound
}
