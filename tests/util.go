package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/upload"
	"github.com/trezcool/tos/core/user"
	appfs "github.com/trezcool/tos/fs"
	"github.com/trezcool/tos/services/email"
	"github.com/trezcool/tos/services/logger"
	"github.com/trezcool/tos/services/report"
	"github.com/trezcool/tos/services/storage"
	"github.com/trezcool/tos/storage/database/inmem"
)

// Password is the password of every user created by CreateUser.
const Password = "Ungu3ssable!pwd"

// Now is the initial time of Env clocks.
var Now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Env wires every service on top of the in-memory database, a fake clock,
// the console e-mail mock and a local file storage.
type Env struct {
	Conf    *core.Config
	DB      *inmemdb.DB
	Clock   clockwork.FakeClock
	Logger  core.Logger
	Storage core.FileStorage
	MailSvc core.EmailService

	TenantRepo tenant.Repository
	UserRepo   user.Repository

	TenantSvc       tenant.Service
	UserSvc         user.Service
	NotificationSvc notification.Service
	ProgramSvc      program.Service
	EnrollmentSvc   enrollment.Service
	UploadSvc       upload.Service
	AssessmentSvc   assessment.Service
	CoachingSvc     coaching.Service
}

// NewEnv returns an Env storing files under storageDir.
func NewEnv(storageDir string) (*Env, error) {
	conf := core.NewTestConfig()
	conf.Storage.LocalDir = storageDir

	logger := logsvc.NewRollbarLogger(logsvc.NameAPI, zap.NewNop(), conf)
	core.ParseEmailTemplates(conf, appfs.FS, logger)

	fileStorage, err := storagesvc.NewLocalStorage(storageDir)
	if err != nil {
		return nil, err
	}

	env := &Env{
		Conf:    conf,
		DB:      inmemdb.Open(),
		Clock:   clockwork.NewFakeClockAt(Now),
		Logger:  logger,
		Storage: fileStorage,
		MailSvc: emailsvc.NewConsoleServiceMock(conf),
	}
	env.TenantRepo = inmemdb.NewTenantRepository(env.DB)
	env.UserRepo = inmemdb.NewUserRepository(env.DB)

	env.TenantSvc = tenant.NewService(env.TenantRepo, env.Clock)
	env.UserSvc = user.NewServiceMock(conf, env.UserRepo, env.TenantSvc, env.MailSvc, logger, env.Clock)
	env.NotificationSvc = notification.NewService(inmemdb.NewNotificationRepository(env.DB), env.UserSvc, env.MailSvc, logger, env.Clock)
	env.ProgramSvc = program.NewService(inmemdb.NewProgramRepository(env.DB), env.TenantSvc, env.Clock)
	env.EnrollmentSvc = enrollment.NewService(
		inmemdb.NewEnrollmentRepository(env.DB), env.ProgramSvc, env.UserSvc, env.NotificationSvc, env.Clock,
	)
	env.UploadSvc = upload.NewService(conf, inmemdb.NewFileRepository(env.DB), fileStorage, env.Clock)
	env.AssessmentSvc = assessment.NewService(
		conf,
		inmemdb.NewAssessmentRepository(env.DB),
		env.UserSvc,
		env.ProgramSvc,
		env.UploadSvc,
		env.NotificationSvc,
		reportsvc.NewRenderer(conf),
		env.Clock,
	)
	env.CoachingSvc = coaching.NewService(inmemdb.NewCoachingRepository(env.DB), env.UserSvc, env.NotificationSvc, env.Clock)
	return env, nil
}

// NewTestEnv is NewEnv for a single test, storing files in a temporary directory.
func NewTestEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv(t.TempDir())
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}
	emailsvc.ClearSentMessages()
	return env
}

// Reset empties the database and the sent e-mails.
func (env *Env) Reset() {
	env.DB.Reset()
	emailsvc.ClearSentMessages()
}

func (env *Env) CreateAgency(t *testing.T, name string) tenant.Agency {
	t.Helper()
	agency, err := env.TenantRepo.CreateAgency(context.Background(), tenant.Agency{
		Name:      name,
		Slug:      slugify(name, "-"),
		IsActive:  true,
		CreatedAt: env.Clock.Now().UTC(),
		UpdatedAt: env.Clock.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAgency() failed: %v", err)
	}
	return agency
}

func (env *Env) CreateTenant(t *testing.T, agencyID, name string) tenant.Tenant {
	t.Helper()
	tnt, err := env.TenantRepo.CreateTenant(context.Background(), tenant.Tenant{
		AgencyID:  agencyID,
		Name:      name,
		Slug:      slugify(name, "-"),
		IsActive:  true,
		CreatedAt: env.Clock.Now().UTC(),
		UpdatedAt: env.Clock.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateTenant() failed: %v", err)
	}
	return tnt
}

// CreateUser creates an active user named name, with username name and e-mail <name>@example.com.
func (env *Env) CreateUser(t *testing.T, agencyID, tenantID, name string, roles ...string) user.User {
	t.Helper()
	if roles == nil {
		roles = []string{}
	}
	now := env.Clock.Now().UTC()
	usr := user.User{
		AgencyID:  agencyID,
		TenantID:  tenantID,
		Name:      name,
		Username:  slugify(name, "_"),
		Email:     slugify(name, "_") + "@example.com",
		IsActive:  true,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := env.UserRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func slugify(name, sep string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", sep)
}
