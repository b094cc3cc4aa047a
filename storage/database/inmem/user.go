package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		if isExcluded(usr, excludedUsers) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = newID()
	usr.Roles = append([]string{}, usr.Roles...)
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(
	_ context.Context,
	vis rbac.Visibility,
	filter *user.QueryFilter,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if !vis.Allows(usr.Resource()) {
			continue
		}
		if filter != nil && !matchUser(*usr, filter) {
			continue
		}
		users = append(users, *usr)
	}

	cmps := map[string]func(i, j int) int{
		"name":       func(i, j int) int { return cmpStrings(users[i].Name, users[j].Name) },
		"username":   func(i, j int) int { return cmpStrings(users[i].Username, users[j].Username) },
		"email":      func(i, j int) int { return cmpStrings(users[i].Email, users[j].Email) },
		"is_active":  func(i, j int) int { return cmpBools(users[i].IsActive, users[j].IsActive) },
		"created_at": func(i, j int) int { return cmpTimes(users[i].CreatedAt, users[j].CreatedAt) },
		"updated_at": func(i, j int) int { return cmpTimes(users[i].UpdatedAt, users[j].UpdatedAt) },
		"last_login": func(i, j int) int { return cmpTimes(users[i].LastLogin, users[j].LastLogin) },
	}
	// newest first by default
	sortByOrderings(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] }, ordering, cmps,
		func(i, j int) int { return -cmpTimes(users[i].CreatedAt, users[j].CreatedAt) })
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" &&
		!(containsFold(usr.Name, filter.Search) || containsFold(usr.Username, filter.Search) || containsFold(usr.Email, filter.Search)) {
		return false
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		var found bool
		for _, prefix := range filter.Roles {
			for _, role := range usr.Roles {
				if strings.HasPrefix(strings.ToLower(role), strings.ToLower(prefix)) {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if filter.TenantID != "" && usr.TenantID != filter.TenantID {
		return false
	}
	return inRange(usr.CreatedAt, filter.CreatedFrom, filter.CreatedTo)
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return *usr, nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return *usr, nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.Roles = append([]string{}, usr.Roles...)
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, ids []string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if excl.ID == usr.ID {
			return true
		}
	}
	return false
}
