package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("enrollment not found")
	ErrProgramNotPublished = core.NewConflictError("only published programs accept enrollments")
	ErrAlreadyEnrolled     = core.NewConflictError("user is already enrolled in this program")
	ErrNotActive           = core.NewConflictError("enrollment is not active")
	errNotInTenant         = "%s is not a member of the program's tenant"
)

type (
	Repository interface {
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		// QueryEnrollments returns the enrollments within vis, newest first.
		QueryEnrollments(ctx context.Context, vis rbac.Visibility, filter *QueryFilter) ([]Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		// EnrollmentExists reports whether userID has an active or completed enrollment in programID.
		EnrollmentExists(ctx context.Context, programID, userID string) (bool, error)
	}

	Service interface {
		Enroll(ctx context.Context, actor rbac.Actor, programID string, ne NewEnrollments) ([]Enrollment, error)
		Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Enrollment, error)
		Get(ctx context.Context, actor rbac.Actor, id string) (Enrollment, error)
		CompleteModule(ctx context.Context, actor rbac.Actor, id, moduleID string) (Enrollment, error)
		Withdraw(ctx context.Context, actor rbac.Actor, id string) (Enrollment, error)
	}

	service struct {
		repo       Repository
		programSvc program.Service
		userSvc    user.Service
		notifier   notification.Notifier
		clock      clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	programSvc program.Service,
	userSvc user.Service,
	notifier notification.Notifier,
	clock clockwork.Clock,
) Service {
	return &service{
		repo:       repo,
		programSvc: programSvc,
		userSvc:    userSvc,
		notifier:   notifier,
		clock:      clock,
	}
}

func (svc *service) Enroll(ctx context.Context, actor rbac.Actor, programID string, ne NewEnrollments) ([]Enrollment, error) {
	prog, err := svc.programSvc.Get(ctx, actor, programID)
	if err != nil {
		return nil, err
	}
	if !actor.Can(rbac.EnrollmentsWrite, rbac.Resource{AgencyID: prog.AgencyID, TenantID: prog.TenantID}) {
		return nil, rbac.ErrNoGrant
	}
	if !prog.IsPublished() {
		return nil, ErrProgramNotPublished
	}

	// check every learner before enrolling anyone
	userIDs := core.UniqueStrings(ne.UserIDs)
	for _, uid := range userIDs {
		usr, err := svc.userSvc.GetByID(ctx, uid)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, pkgerrors.Wrap(err, "getting user")
		}
		if err != nil || usr.TenantID != prog.TenantID || !usr.IsActive {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "user_ids", Error: fmt.Sprintf(errNotInTenant, uid)})
		}
		exists, err := svc.repo.EnrollmentExists(ctx, prog.ID, uid)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "checking enrollment")
		}
		if exists {
			return nil, ErrAlreadyEnrolled
		}
	}

	now := svc.clock.Now().UTC()
	enrs := make([]Enrollment, 0, len(userIDs))
	for _, uid := range userIDs {
		enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
			ProgramID:        prog.ID,
			UserID:           uid,
			AgencyID:         prog.AgencyID,
			TenantID:         prog.TenantID,
			Status:           StatusActive,
			EnrolledAt:       now,
			CompletedModules: []string{},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "creating enrollment")
		}
		progress := ComputeProgress(enr, prog)
		enr.Progress = &progress
		enrs = append(enrs, enr)
	}

	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: userIDs,
		Kind:    notification.KindEnrollmentCreated,
		Title:   "You have been enrolled in " + prog.Title,
		Body:    prog.Description,
		Link:    "/programs/" + prog.ID,
	})
	return enrs, nil
}

func (svc *service) Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Enrollment, error) {
	vis, err := actor.Visibility(rbac.EnrollmentsRead)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		filter.Clean()
	}
	enrs, err := svc.repo.QueryEnrollments(ctx, vis, filter)
	if err != nil {
		return nil, err
	}

	progs := make(map[string]program.Program)
	for i := range enrs {
		prog, ok := progs[enrs[i].ProgramID]
		if !ok {
			if prog, err = svc.programSvc.GetByID(ctx, enrs[i].ProgramID); err != nil {
				return nil, pkgerrors.Wrap(err, "getting program")
			}
			progs[prog.ID] = prog
		}
		progress := ComputeProgress(enrs[i], prog)
		enrs[i].Progress = &progress
	}
	return enrs, nil
}

// get returns the enrollment id with its program, if actor can see it.
func (svc *service) get(ctx context.Context, actor rbac.Actor, id string) (Enrollment, program.Program, error) {
	enr, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, program.Program{}, err
	}
	if !actor.Can(rbac.EnrollmentsRead, enr.Resource()) {
		return Enrollment{}, program.Program{}, ErrNotFound
	}
	prog, err := svc.programSvc.GetByID(ctx, enr.ProgramID)
	if err != nil {
		return Enrollment{}, program.Program{}, pkgerrors.Wrap(err, "getting program")
	}
	progress := ComputeProgress(enr, prog)
	enr.Progress = &progress
	return enr, prog, nil
}

func (svc *service) Get(ctx context.Context, actor rbac.Actor, id string) (Enrollment, error) {
	enr, _, err := svc.get(ctx, actor, id)
	return enr, err
}

func (svc *service) save(ctx context.Context, enr Enrollment, prog program.Program) (Enrollment, error) {
	enr.Progress = nil
	updated, err := svc.repo.UpdateEnrollment(ctx, enr)
	if err != nil {
		return Enrollment{}, err
	}
	progress := ComputeProgress(updated, prog)
	updated.Progress = &progress
	return updated, nil
}

func (svc *service) CompleteModule(ctx context.Context, actor rbac.Actor, id, moduleID string) (Enrollment, error) {
	enr, prog, err := svc.get(ctx, actor, id)
	if err != nil {
		return Enrollment{}, err
	}
	if !actor.Can(rbac.ProgressWrite, enr.Resource()) {
		return Enrollment{}, rbac.ErrNoGrant
	}
	if _, ok := prog.Module(moduleID); !ok {
		return Enrollment{}, program.ErrModuleNotFound
	}
	if enr.HasCompleted(moduleID) {
		return enr, nil
	}
	if !enr.IsActive() {
		return Enrollment{}, ErrNotActive
	}

	enr.CompletedModules = append(append([]string{}, enr.CompletedModules...), moduleID)
	completed := ComputeProgress(enr, prog).CompletedModules == len(prog.Modules)
	if completed {
		now := svc.clock.Now().UTC()
		enr.Status = StatusCompleted
		enr.CompletedAt = &now
	}
	enr, err = svc.save(ctx, enr, prog)
	if err != nil {
		return Enrollment{}, err
	}

	if completed {
		svc.notifier.Notify(ctx, notification.Notice{
			UserIDs: []string{enr.UserID},
			Kind:    notification.KindProgramCompleted,
			Title:   "You completed " + prog.Title,
			Body:    "Congratulations on completing every module of " + prog.Title + ".",
			Link:    "/enrollments/" + enr.ID,
		})
	}
	return enr, nil
}

func (svc *service) Withdraw(ctx context.Context, actor rbac.Actor, id string) (Enrollment, error) {
	enr, prog, err := svc.get(ctx, actor, id)
	if err != nil {
		return Enrollment{}, err
	}
	if !actor.Can(rbac.EnrollmentsWrite, enr.Resource()) {
		return Enrollment{}, rbac.ErrNoGrant
	}
	if !enr.IsActive() {
		return Enrollment{}, ErrNotActive
	}
	enr.Status = StatusWithdrawn
	return svc.save(ctx, enr, prog)
}
