package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core/notification"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Link      string    `db:"link"`
	ReadAt    null.Time `db:"read_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		Link:      r.Link,
		ReadAt:    timePtr(r.ReadAt),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

const notificationColumns = "id, user_id, kind, title, body, link, read_at, created_at"

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, notifs []notification.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	rows := make([]notificationRow, 0, len(notifs))
	for _, n := range notifs {
		rows = append(rows, notificationRow{
			ID:        newID(),
			UserID:    n.UserID,
			Kind:      n.Kind,
			Title:     n.Title,
			Body:      n.Body,
			Link:      n.Link,
			ReadAt:    nullTime(n.ReadAt),
			CreatedAt: n.CreatedAt.UTC(),
		})
	}
	// batch insert
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES "+
			"(:id, :user_id, :kind, :title, :body, :link, :read_at, :created_at)",
		rows)
	return errors.Wrap(err, "inserting notifications")
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, filter notification.QueryFilter) ([]notification.Notification, error) {
	if !validID(userID) {
		return []notification.Notification{}, nil
	}
	var q query
	q.where("user_id = ?", userID)
	if filter.Unread {
		q.where("read_at IS NULL")
	}
	orderBy := "created_at DESC"
	if filter.Limit > 0 {
		q.args = append(q.args, filter.Limit)
		orderBy += " LIMIT ?"
	}

	var rows []notificationRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+notificationColumns+" FROM notifications", orderBy); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	var count int
	err := repo.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL", userID)
	return count, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if !validID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "getting notification")
	}
	return row.notification(), nil
}

// MarkRead sets the read time of the notification, unless it is already read.
func (repo *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (notification.Notification, error) {
	if !validID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	err := repo.db.GetContext(ctx, &row,
		"UPDATE notifications SET read_at = COALESCE(read_at, $2) WHERE id = $1 RETURNING "+notificationColumns,
		id, at.UTC())
	if err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "marking notification read")
	}
	return row.notification(), nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx,
		"UPDATE notifications SET read_at = $2 WHERE user_id = $1 AND read_at IS NULL", userID, at.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking notifications read")
}
