package dig_container

import (
	"context"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/tos/apps/api/echo"
	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/upload"
	"github.com/trezcool/tos/core/user"
	emailsvc "github.com/trezcool/tos/services/email"
	logsvc "github.com/trezcool/tos/services/logger"
	"github.com/trezcool/tos/services/ratelimit"
	reportsvc "github.com/trezcool/tos/services/report"
	storagesvc "github.com/trezcool/tos/services/storage"
	"github.com/trezcool/tos/storage/database"
	inmemdb "github.com/trezcool/tos/storage/database/inmem"
	sqlxrepos "github.com/trezcool/tos/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBCloser releases the database connections; a no-op with the in-memory database.
	DBCloser func() error

	// Repositories are backed by postgres, or by the in-memory database when
	// conf.Database.InMemory is set (DEV only).
	Repositories struct {
		dig.Out

		Tenants       tenant.Repository
		Users         user.Repository
		Programs      program.Repository
		Enrollments   enrollment.Repository
		Assessments   assessment.Repository
		Coaching      coaching.Repository
		Notifications notification.Repository
		Files         upload.Repository
		HealthCheck   echoapi.HealthChecker
		Close         DBCloser
	}

	ServerParams struct {
		dig.In

		Conf        *core.Config
		Logger      core.Logger
		Clock       clockwork.Clock
		Validate    *validator.Validate
		Translator  ut.Translator
		RateLimiter core.RateLimiter
		HealthCheck echoapi.HealthChecker

		TenantSvc       tenant.Service
		UserSvc         user.Service
		ProgramSvc      program.Service
		EnrollmentSvc   enrollment.Service
		AssessmentSvc   assessment.Service
		CoachingSvc     coaching.Service
		NotificationSvc notification.Service
		UploadSvc       upload.Service
	}
)

func newZapLogger(conf *core.Config) (*zap.Logger, error) {
	return logsvc.NewZapLogger(conf)
}

func newLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NameAPI, zl, conf)
}

func newDBLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NameDB, zl, conf)
}

func newClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.InMemory {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on exit")
		db := inmemdb.Open()
		return Repositories{
			Tenants:       inmemdb.NewTenantRepository(db),
			Users:         inmemdb.NewUserRepository(db),
			Programs:      inmemdb.NewProgramRepository(db),
			Enrollments:   inmemdb.NewEnrollmentRepository(db),
			Assessments:   inmemdb.NewAssessmentRepository(db),
			Coaching:      inmemdb.NewCoachingRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Files:         inmemdb.NewFileRepository(db),
			Close:         func() error { return nil },
		}
	}

	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal("setting up database", err)
	}
	return Repositories{
		Tenants:       sqlxrepos.NewTenantRepository(db),
		Users:         sqlxrepos.NewUserRepository(db),
		Programs:      sqlxrepos.NewProgramRepository(db),
		Enrollments:   sqlxrepos.NewEnrollmentRepository(db),
		Assessments:   sqlxrepos.NewAssessmentRepository(db),
		Coaching:      sqlxrepos.NewCoachingRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Files:         sqlxrepos.NewFileRepository(db),
		HealthCheck:   db.PingContext,
		Close:         db.Close,
	}
}

func newFileStorage(conf *core.Config) (core.FileStorage, error) {
	return storagesvc.New(context.Background(), conf)
}

func newNotifier(svc notification.Service) notification.Notifier {
	return svc
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newServer(p ServerParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Clock:           p.Clock,
		Validate:        p.Validate,
		Translator:      p.Translator,
		RateLimiter:     p.RateLimiter,
		HealthCheck:     p.HealthCheck,
		TenantSvc:       p.TenantSvc,
		UserSvc:         p.UserSvc,
		ProgramSvc:      p.ProgramSvc,
		EnrollmentSvc:   p.EnrollmentSvc,
		AssessmentSvc:   p.AssessmentSvc,
		CoachingSvc:     p.CoachingSvc,
		NotificationSvc: p.NotificationSvc,
		UploadSvc:       p.UploadSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(newClock))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))

	// storage & services
	must(c.Provide(newRepositories))
	must(c.Provide(newFileStorage))
	must(c.Provide(emailsvc.New))
	must(c.Provide(ratelimit.New))
	must(c.Provide(reportsvc.NewRenderer))

	// domain
	must(c.Provide(tenant.NewService))
	must(c.Provide(user.NewService))
	must(c.Provide(notification.NewService))
	must(c.Provide(newNotifier))
	must(c.Provide(program.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(upload.NewService))
	must(c.Provide(assessment.NewService))
	must(c.Provide(coaching.NewService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
