package notification

import (
	"context"
	"net/mail"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/services/metrics"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("notification not found")
)

type (
	Repository interface {
		CreateNotifications(ctx context.Context, notifs []Notification) error
		// QueryNotifications returns the notifications of userID, newest first.
		QueryNotifications(ctx context.Context, userID string, filter QueryFilter) ([]Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		MarkRead(ctx context.Context, id string, at time.Time) (Notification, error)
		// MarkAllRead marks every unread notification of userID read and returns how many there were.
		MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	}

	// Notifier is what other services use to notify users.
	Notifier interface {
		// Notify never fails: errors are logged and counted.
		Notify(ctx context.Context, notice Notice)
	}

	Service interface {
		Notifier
		List(ctx context.Context, actor rbac.Actor, filter QueryFilter) ([]Notification, error)
		UnreadCount(ctx context.Context, actor rbac.Actor) (int, error)
		MarkRead(ctx context.Context, actor rbac.Actor, id string) (Notification, error)
		MarkAllRead(ctx context.Context, actor rbac.Actor) (int, error)
	}

	service struct {
		repo    Repository
		userSvc user.Service
		mailSvc core.EmailService
		logger  core.Logger
		clock   clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	userSvc user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	clock clockwork.Clock,
) Service {
	return &service{
		repo:    repo,
		userSvc: userSvc,
		mailSvc: mailSvc,
		logger:  logger,
		clock:   clock,
	}
}

func (svc *service) Notify(ctx context.Context, notice Notice) {
	userIDs := core.UniqueStrings(notice.UserIDs)
	if len(userIDs) == 0 {
		return
	}

	now := svc.clock.Now().UTC()
	notifs := make([]Notification, 0, len(userIDs))
	for _, id := range userIDs {
		notifs = append(notifs, Notification{
			UserID:    id,
			Kind:      notice.Kind,
			Title:     notice.Title,
			Body:      notice.Body,
			Link:      notice.Link,
			CreatedAt: now,
		})
	}
	if err := svc.repo.CreateNotifications(ctx, notifs); err != nil {
		metrics.NotificationsTotal.WithLabelValues(notice.Kind, metrics.StatusError).Add(float64(len(notifs)))
		svc.logger.Error("storing notifications", errors.Wrap(err, "creating notifications"), map[string]interface{}{
			"kind":  notice.Kind,
			"users": userIDs,
		})
		return
	}
	metrics.NotificationsTotal.WithLabelValues(notice.Kind, metrics.StatusStored).Add(float64(len(notifs)))

	users, err := svc.userSvc.GetMany(ctx, userIDs...)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(notice.Kind, metrics.StatusError).Add(float64(len(notifs)))
		svc.logger.Error("getting notified users", errors.Wrap(err, "getting users"))
		return
	}

	messages := make([]*core.EmailMessage, 0, len(users))
	for _, usr := range users {
		if usr.Email == "" || !usr.IsActive {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      notice.Title,
			TemplateName: "notification",
			TemplateData: map[string]string{
				"Name":  usr.Name,
				"Title": notice.Title,
				"Body":  notice.Body,
				"Link":  notice.Link,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
		metrics.NotificationsTotal.WithLabelValues(notice.Kind, metrics.StatusEmailed).Add(float64(len(messages)))
	}
}

func (svc *service) List(ctx context.Context, actor rbac.Actor, filter QueryFilter) ([]Notification, error) {
	filter.Clean()
	return svc.repo.QueryNotifications(ctx, actor.ID, filter)
}

func (svc *service) UnreadCount(ctx context.Context, actor rbac.Actor) (int, error) {
	return svc.repo.CountUnread(ctx, actor.ID)
}

func (svc *service) MarkRead(ctx context.Context, actor rbac.Actor, id string) (Notification, error) {
	notif, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	// notifications are private to their recipient
	if notif.UserID != actor.ID {
		return Notification{}, ErrNotFound
	}
	if notif.IsRead() {
		return notif, nil
	}
	return svc.repo.MarkRead(ctx, id, svc.clock.Now().UTC())
}

func (svc *service) MarkAllRead(ctx context.Context, actor rbac.Actor) (int, error) {
	return svc.repo.MarkAllRead(ctx, actor.ID, svc.clock.Now().UTC())
}
