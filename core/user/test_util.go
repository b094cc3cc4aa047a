package user

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/tenant"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service that sends its e-mails synchronously.
func NewServiceMock(
	conf *core.Config,
	repo Repository,
	tenantSvc tenant.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	clock clockwork.Clock,
) Service {
	return &serviceMock{
		service: service{
			conf:      conf,
			repo:      repo,
			tenantSvc: tenantSvc,
			mailSvc:   mailSvc,
			logger:    logger,
			clock:     clock,
			tokenGen:  newTokenGenerator(conf, clock),
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
