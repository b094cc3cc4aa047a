package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/tos/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, notifs []notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range notifs {
		notif := notifs[i]
		notif.ID = newID()
		repo.db.notifications[notif.ID] = &notif
	}
	return nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, filter notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID != userID || (filter.Unread && n.IsRead()) {
			continue
		}
		notifs = append(notifs, *n)
	}
	sortByOrderings(len(notifs), func(i, j int) { notifs[i], notifs[j] = notifs[j], notifs[i] }, nil, nil,
		func(i, j int) int { return -cmpTimes(notifs[i].CreatedAt, notifs[j].CreatedAt) })
	if filter.Limit > 0 && len(notifs) > filter.Limit {
		notifs = notifs[:filter.Limit]
	}
	return notifs, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.notifications[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) MarkRead(_ context.Context, id string, at time.Time) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	if n.ReadAt == nil {
		readAt := at
		n.ReadAt = &readAt
	}
	return *n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			readAt := at
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}
