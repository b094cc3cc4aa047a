package inmemdb

import (
	"context"

	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/rbac"
)

type programRepository struct {
	db *DB
}

var _ program.Repository = (*programRepository)(nil)

func NewProgramRepository(db *DB) program.Repository {
	return &programRepository{db: db}
}

func copyProgram(p program.Program, withModules bool) program.Program {
	if withModules {
		p.Modules = append([]program.Module{}, p.Modules...)
	} else {
		p.Modules = nil
	}
	return p
}

func (repo *programRepository) CreateProgram(_ context.Context, prog program.Program) (program.Program, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	prog.ID = newID()
	prog.Modules = nil
	repo.db.programs[prog.ID] = &prog
	return prog, nil
}

func (repo *programRepository) QueryPrograms(_ context.Context, vis rbac.Visibility, filter *program.QueryFilter) ([]program.Program, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	progs := make([]program.Program, 0, len(repo.db.programs))
	for _, p := range repo.db.programs {
		if !vis.Allows(p.Resource()) {
			continue
		}
		if filter != nil {
			if filter.Search != "" && !(containsFold(p.Title, filter.Search) || containsFold(p.Description, filter.Search)) {
				continue
			}
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.TenantID != "" && p.TenantID != filter.TenantID {
				continue
			}
		}
		progs = append(progs, copyProgram(*p, false))
	}
	sortByOrderings(len(progs), func(i, j int) { progs[i], progs[j] = progs[j], progs[i] }, nil, nil,
		func(i, j int) int { return -cmpTimes(progs[i].CreatedAt, progs[j].CreatedAt) })
	return progs, nil
}

func (repo *programRepository) GetProgram(_ context.Context, id string) (program.Program, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.programs[id]; ok {
		return copyProgram(*p, true), nil
	}
	return program.Program{}, program.ErrNotFound
}

func (repo *programRepository) UpdateProgram(_ context.Context, prog program.Program) (program.Program, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.programs[prog.ID]
	if !ok {
		return program.Program{}, program.ErrNotFound
	}
	// modules are managed separately
	prog.Modules = p.Modules
	repo.db.programs[prog.ID] = &prog
	return copyProgram(prog, false), nil
}

func (repo *programRepository) DeleteProgram(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.programs, id)
	for eid, e := range repo.db.enrollments {
		if e.ProgramID == id {
			delete(repo.db.enrollments, eid)
		}
	}
	return nil
}

func (repo *programRepository) CreateModule(_ context.Context, mod program.Module) (program.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.programs[mod.ProgramID]
	if !ok {
		return program.Module{}, program.ErrNotFound
	}
	mod.ID = newID()
	p.Modules = append(p.Modules, mod)
	sortModules(p.Modules)
	return mod, nil
}

func (repo *programRepository) UpdateModule(_ context.Context, mod program.Module) (program.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.programs[mod.ProgramID]
	if !ok {
		return program.Module{}, program.ErrModuleNotFound
	}
	for i := range p.Modules {
		if p.Modules[i].ID == mod.ID {
			p.Modules[i] = mod
			sortModules(p.Modules)
			return mod, nil
		}
	}
	return program.Module{}, program.ErrModuleNotFound
}

func (repo *programRepository) DeleteModule(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, p := range repo.db.programs {
		for i := range p.Modules {
			if p.Modules[i].ID == id {
				p.Modules = append(p.Modules[:i:i], p.Modules[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (repo *programRepository) SetModulePositions(_ context.Context, programID string, ids []string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.programs[programID]
	if !ok {
		return program.ErrNotFound
	}
	positions := make(map[string]int, len(ids))
	for i, id := range ids {
		positions[id] = i + 1
	}
	for i := range p.Modules {
		if pos, ok := positions[p.Modules[i].ID]; ok {
			p.Modules[i].Position = pos
		}
	}
	sortModules(p.Modules)
	return nil
}

func sortModules(mods []program.Module) {
	sortByOrderings(len(mods), func(i, j int) { mods[i], mods[j] = mods[j], mods[i] }, nil, nil,
		func(i, j int) int { return mods[i].Position - mods[j].Position })
}
