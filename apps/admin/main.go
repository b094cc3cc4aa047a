package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/tenant"
	logsvc "github.com/trezcool/tos/services/logger"
	"github.com/trezcool/tos/storage/database"
	sqlxrepos "github.com/trezcool/tos/storage/database/sqlx"
)

var errNoDatabase = errors.New("no database: the admin CLI needs postgres")

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	logger := logsvc.NewRollbarLogger("ADMIN", zl, conf)

	if conf.Database.InMemory {
		logger.Fatal(errNoDatabase.Error(), errNoDatabase)
	}

	// set up DB
	ctx := context.Background()
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)

	// start CLI
	clock := clockwork.NewRealClock()
	cli := commandLine{
		db:        db.DB,
		usrRepo:   sqlxrepos.NewUserRepository(db),
		tenantSvc: tenant.NewService(sqlxrepos.NewTenantRepository(db), clock),
		validate:  validate,
		clock:     clock,
		out:       os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for field, msg := range verrs.Translate(translator) {
					fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
				}
			}
			logger.Error("admin command failed", err)
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
