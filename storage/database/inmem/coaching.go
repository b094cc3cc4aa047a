package inmemdb

import (
	"context"

	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/rbac"
)

type coachingRepository struct {
	db *DB
}

var _ coaching.Repository = (*coachingRepository)(nil)

func NewCoachingRepository(db *DB) coaching.Repository {
	return &coachingRepository{db: db}
}

func (repo *coachingRepository) CreateEngagement(_ context.Context, eng coaching.Engagement) (coaching.Engagement, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	eng.ID = newID()
	repo.db.engagements[eng.ID] = &eng
	return eng, nil
}

func (repo *coachingRepository) QueryEngagements(_ context.Context, vis rbac.Visibility, filter *coaching.QueryFilter) ([]coaching.Engagement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	engs := make([]coaching.Engagement, 0)
	for _, e := range repo.db.engagements {
		if !vis.Allows(e.Resource()) {
			continue
		}
		if filter != nil {
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			if filter.Kind != "" && e.Kind != filter.Kind {
				continue
			}
			if filter.CoachID != "" && e.CoachID != filter.CoachID {
				continue
			}
			if filter.LearnerID != "" && e.LearnerID != filter.LearnerID {
				continue
			}
		}
		engs = append(engs, *e)
	}
	sortByOrderings(len(engs), func(i, j int) { engs[i], engs[j] = engs[j], engs[i] }, nil, nil,
		func(i, j int) int { return -cmpTimes(engs[i].StartedAt, engs[j].StartedAt) })
	return engs, nil
}

func (repo *coachingRepository) GetEngagement(_ context.Context, id string) (coaching.Engagement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.engagements[id]; ok {
		return *e, nil
	}
	return coaching.Engagement{}, coaching.ErrNotFound
}

func (repo *coachingRepository) UpdateEngagement(_ context.Context, eng coaching.Engagement) (coaching.Engagement, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.engagements[eng.ID]; !ok {
		return coaching.Engagement{}, coaching.ErrNotFound
	}
	repo.db.engagements[eng.ID] = &eng
	return eng, nil
}

func (repo *coachingRepository) ActiveEngagementExists(_ context.Context, coachID, learnerID, kind string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, e := range repo.db.engagements {
		if e.CoachID == coachID && e.LearnerID == learnerID && e.Kind == kind && e.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (repo *coachingRepository) CreateSession(_ context.Context, sess coaching.Session) (coaching.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess.ID = newID()
	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *coachingRepository) QuerySessions(_ context.Context, engagementID string) ([]coaching.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sessions := make([]coaching.Session, 0)
	for _, s := range repo.db.sessions {
		if s.EngagementID == engagementID {
			sessions = append(sessions, *s)
		}
	}
	sortByOrderings(len(sessions), func(i, j int) { sessions[i], sessions[j] = sessions[j], sessions[i] }, nil, nil,
		func(i, j int) int { return cmpTimes(sessions[i].ScheduledAt, sessions[j].ScheduledAt) })
	return sessions, nil
}

func (repo *coachingRepository) GetSession(_ context.Context, id string) (coaching.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return *s, nil
	}
	return coaching.Session{}, coaching.ErrSessionNotFound
}

func (repo *coachingRepository) UpdateSession(_ context.Context, sess coaching.Session) (coaching.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.sessions[sess.ID]; !ok {
		return coaching.Session{}, coaching.ErrSessionNotFound
	}
	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}
