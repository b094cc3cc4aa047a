package program

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("program not found")
	ErrModuleNotFound   = core.NewNotFoundError("module not found")
	ErrArchived         = core.NewConflictError("archived programs are read-only")
	ErrNotDraft         = core.NewConflictError("only draft programs can be deleted")
	ErrAlreadyPublished = core.NewConflictError("program is already published")
	ErrNoModules        = core.NewConflictError("a published program needs at least one module")
	errTenantRequired   = "this field is required"
	errInvalidOrder     = "must list every module of the program exactly once"
)

type (
	Repository interface {
		CreateProgram(ctx context.Context, prog Program) (Program, error)
		// QueryPrograms returns the programs within vis, without their modules.
		QueryPrograms(ctx context.Context, vis rbac.Visibility, filter *QueryFilter) ([]Program, error)
		// GetProgram returns the program with its modules sorted by position.
		GetProgram(ctx context.Context, id string) (Program, error)
		UpdateProgram(ctx context.Context, prog Program) (Program, error)
		DeleteProgram(ctx context.Context, id string) error

		CreateModule(ctx context.Context, mod Module) (Module, error)
		UpdateModule(ctx context.Context, mod Module) (Module, error)
		DeleteModule(ctx context.Context, id string) error
		// SetModulePositions sets the position of each module of ids to its index + 1.
		SetModulePositions(ctx context.Context, programID string, ids []string) error
	}

	Service interface {
		Create(ctx context.Context, actor rbac.Actor, np NewProgram) (Program, error)
		Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Program, error)
		Get(ctx context.Context, actor rbac.Actor, id string) (Program, error)
		// GetByID returns the program without checking permissions.
		GetByID(ctx context.Context, id string) (Program, error)
		Update(ctx context.Context, actor rbac.Actor, id string, up UpdateProgram) (Program, error)
		Delete(ctx context.Context, actor rbac.Actor, id string) error
		Publish(ctx context.Context, actor rbac.Actor, id string) (Program, error)
		Archive(ctx context.Context, actor rbac.Actor, id string) (Program, error)

		AddModule(ctx context.Context, actor rbac.Actor, programID string, nm NewModule) (Module, error)
		UpdateModule(ctx context.Context, actor rbac.Actor, programID, moduleID string, um UpdateModule) (Module, error)
		DeleteModule(ctx context.Context, actor rbac.Actor, programID, moduleID string) error
		ReorderModules(ctx context.Context, actor rbac.Actor, programID string, rm ReorderModules) (Program, error)
	}

	service struct {
		repo      Repository
		tenantSvc tenant.Service
		clock     clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, tenantSvc tenant.Service, clock clockwork.Clock) Service {
	return &service{repo: repo, tenantSvc: tenantSvc, clock: clock}
}

func (svc *service) Create(ctx context.Context, actor rbac.Actor, np NewProgram) (Program, error) {
	if np.TenantID == "" {
		np.TenantID = actor.TenantID
	}
	if np.TenantID == "" {
		return Program{}, core.NewValidationError(nil, core.FieldError{Field: "tenant_id", Error: errTenantRequired})
	}
	tnt, err := svc.tenantSvc.GetTenantByID(ctx, np.TenantID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Program{}, core.NewValidationError(nil, core.FieldError{Field: "tenant_id", Error: tenant.ErrTenantNotFound.Error()})
		}
		return Program{}, pkgerrors.Wrap(err, "getting tenant")
	}

	now := svc.clock.Now().UTC()
	prog := Program{
		AgencyID:    tnt.AgencyID,
		TenantID:    tnt.ID,
		Title:       np.Title,
		Description: np.Description,
		Status:      StatusDraft,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !actor.Can(rbac.ProgramsWrite, prog.Resource()) {
		return Program{}, rbac.ErrNoGrant
	}
	return svc.repo.CreateProgram(ctx, prog)
}

// canEdit reports whether actor may see drafts and change prog.
func canEdit(actor rbac.Actor, prog Program) bool {
	return actor.Can(rbac.ProgramsWrite, prog.Resource())
}

func (svc *service) Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Program, error) {
	vis, err := actor.Visibility(rbac.ProgramsRead)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	// readers only see published programs
	if _, ok := actor.Scope(rbac.ProgramsWrite); !ok {
		filter.Status = StatusPublished
	}

	progs, err := svc.repo.QueryPrograms(ctx, vis, filter)
	if err != nil {
		return nil, err
	}
	visible := progs[:0]
	for _, prog := range progs {
		if prog.IsPublished() || canEdit(actor, prog) {
			visible = append(visible, prog)
		}
	}
	return visible, nil
}

func (svc *service) Get(ctx context.Context, actor rbac.Actor, id string) (Program, error) {
	prog, err := svc.repo.GetProgram(ctx, id)
	if err != nil {
		return Program{}, err
	}
	if !actor.Can(rbac.ProgramsRead, prog.Resource()) {
		return Program{}, ErrNotFound
	}
	if !prog.IsPublished() && !canEdit(actor, prog) {
		return Program{}, ErrNotFound
	}
	return prog, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgram(ctx, id)
}

// getEditable returns the program id if actor may change it.
func (svc *service) getEditable(ctx context.Context, actor rbac.Actor, id string) (Program, error) {
	prog, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Program{}, err
	}
	if !canEdit(actor, prog) {
		return Program{}, rbac.ErrNoGrant
	}
	if prog.IsArchived() {
		return Program{}, ErrArchived
	}
	return prog, nil
}

func (svc *service) Update(ctx context.Context, actor rbac.Actor, id string, up UpdateProgram) (Program, error) {
	prog, err := svc.getEditable(ctx, actor, id)
	if err != nil {
		return Program{}, err
	}
	if up.Title != "" {
		prog.Title = up.Title
	}
	if up.Description != nil {
		prog.Description = *up.Description
	}
	prog.UpdatedAt = svc.clock.Now().UTC()
	return svc.save(ctx, prog)
}

// save updates prog and returns it with its modules.
func (svc *service) save(ctx context.Context, prog Program) (Program, error) {
	modules := prog.Modules
	updated, err := svc.repo.UpdateProgram(ctx, prog)
	if err != nil {
		return Program{}, err
	}
	updated.Modules = modules
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, actor rbac.Actor, id string) error {
	prog, err := svc.getEditable(ctx, actor, id)
	if err != nil {
		return err
	}
	if prog.Status != StatusDraft {
		return ErrNotDraft
	}
	return svc.repo.DeleteProgram(ctx, prog.ID)
}

func (svc *service) Publish(ctx context.Context, actor rbac.Actor, id string) (Program, error) {
	prog, err := svc.getEditable(ctx, actor, id)
	if err != nil {
		return Program{}, err
	}
	if prog.IsPublished() {
		return Program{}, ErrAlreadyPublished
	}
	if len(prog.Modules) == 0 {
		return Program{}, ErrNoModules
	}
	now := svc.clock.Now().UTC()
	prog.Status = StatusPublished
	prog.PublishedAt = &now
	prog.UpdatedAt = now
	return svc.save(ctx, prog)
}

func (svc *service) Archive(ctx context.Context, actor rbac.Actor, id string) (Program, error) {
	prog, err := svc.getEditable(ctx, actor, id)
	if err != nil {
		return Program{}, err
	}
	prog.Status = StatusArchived
	prog.UpdatedAt = svc.clock.Now().UTC()
	return svc.save(ctx, prog)
}

func (svc *service) AddModule(ctx context.Context, actor rbac.Actor, programID string, nm NewModule) (Module, error) {
	prog, err := svc.getEditable(ctx, actor, programID)
	if err != nil {
		return Module{}, err
	}
	mod, err := svc.repo.CreateModule(ctx, Module{
		ProgramID:       prog.ID,
		Title:           nm.Title,
		Content:         nm.Content,
		Position:        len(prog.Modules) + 1,
		DurationMinutes: nm.DurationMinutes,
	})
	if err != nil {
		return Module{}, err
	}
	prog.UpdatedAt = svc.clock.Now().UTC()
	if _, err = svc.repo.UpdateProgram(ctx, prog); err != nil {
		return Module{}, pkgerrors.Wrap(err, "updating program")
	}
	return mod, nil
}

func (svc *service) UpdateModule(ctx context.Context, actor rbac.Actor, programID, moduleID string, um UpdateModule) (Module, error) {
	prog, err := svc.getEditable(ctx, actor, programID)
	if err != nil {
		return Module{}, err
	}
	mod, ok := prog.Module(moduleID)
	if !ok {
		return Module{}, ErrModuleNotFound
	}
	if um.Title != "" {
		mod.Title = um.Title
	}
	if um.Content != nil {
		mod.Content = *um.Content
	}
	if um.DurationMinutes != nil {
		mod.DurationMinutes = *um.DurationMinutes
	}
	return svc.repo.UpdateModule(ctx, mod)
}

func (svc *service) DeleteModule(ctx context.Context, actor rbac.Actor, programID, moduleID string) error {
	prog, err := svc.getEditable(ctx, actor, programID)
	if err != nil {
		return err
	}
	if _, ok := prog.Module(moduleID); !ok {
		return ErrModuleNotFound
	}
	// a published program keeps at least one module
	if prog.IsPublished() && len(prog.Modules) == 1 {
		return ErrNoModules
	}
	if err = svc.repo.DeleteModule(ctx, moduleID); err != nil {
		return err
	}

	remaining := make([]string, 0, len(prog.Modules)-1)
	for _, id := range prog.ModuleIDs() {
		if id != moduleID {
			remaining = append(remaining, id)
		}
	}
	return svc.repo.SetModulePositions(ctx, prog.ID, remaining)
}

func (svc *service) ReorderModules(ctx context.Context, actor rbac.Actor, programID string, rm ReorderModules) (Program, error) {
	prog, err := svc.getEditable(ctx, actor, programID)
	if err != nil {
		return Program{}, err
	}
	if !isPermutation(rm.ModuleIDs, prog.ModuleIDs()) {
		return Program{}, core.NewValidationError(nil, core.FieldError{Field: "module_ids", Error: errInvalidOrder})
	}
	if err = svc.repo.SetModulePositions(ctx, prog.ID, rm.ModuleIDs); err != nil {
		return Program{}, err
	}
	return svc.repo.GetProgram(ctx, prog.ID)
}

// isPermutation reports whether ids holds exactly the elements of of, each once.
func isPermutation(ids, of []string) bool {
	if len(ids) != len(of) {
		return false
	}
	want := make(map[string]bool, len(of))
	for _, id := range of {
		want[id] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}
