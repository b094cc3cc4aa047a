package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/services/metrics"
)

const (
	backendSendgrid = "sendgrid"
	sendgridHost    = "https://api.sendgrid.com"
	sendgridPath    = "/v3/mail/send"

	// consecutive failures before the breaker opens
	breakerMaxFailures = 5
	breakerTimeout     = 30 * time.Second
)

type sendgridService struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
	breaker    *gobreaker.CircuitBreaker
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return newSendgridService(conf, logger, sendgridHost)
}

func newSendgridService(conf *core.Config, logger core.Logger, host string) *sendgridService {
	return &sendgridService{
		key:        conf.SendgridApiKey,
		host:       host,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    backendSendgrid,
			Timeout: breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerMaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn(fmt.Sprintf("%s circuit breaker: %s -> %s", name, from, to))
			},
		}),
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				metrics.EmailsSentTotal.WithLabelValues(backendSendgrid, metrics.StatusError).Inc()
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), errors.WithStack(err))
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				if err := svc.send(*msg); err != nil {
					svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
				}
			}
		}()
	}
}

func (svc *sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, a := range msg.Attachments {
		m.AddAttachment(getSGAttachment(a))
	}

	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func getSGAttachment(at core.Attachment) *sgmail.Attachment {
	return &sgmail.Attachment{
		Content:     at.Content.String(),
		Type:        at.ContentType,
		Filename:    at.Filename,
		Disposition: "attachment",
	}
}

// send posts msg to sendgrid through the circuit breaker.
// 4xx responses are the message's fault and do not count against the breaker.
func (svc *sendgridService) send(msg core.EmailMessage) error {
	req := sendgrid.GetRequest(svc.key, sendgridPath, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	var clientErr error
	_, err := svc.breaker.Execute(func() (interface{}, error) {
		res, err := sendgrid.API(req)
		if err != nil {
			return nil, errors.Wrap(err, "calling sendgrid")
		}
		switch {
		case res.StatusCode >= http.StatusInternalServerError:
			return nil, errors.Errorf("sendgrid status: %d - body: %s", res.StatusCode, res.Body)
		case res.StatusCode >= http.StatusBadRequest:
			clientErr = errors.Errorf("sendgrid status: %d - body: %s", res.StatusCode, res.Body)
		}
		return nil, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.EmailsSentTotal.WithLabelValues(backendSendgrid, metrics.StatusRejected).Inc()
		return errors.Wrap(err, "sendgrid unavailable")
	case err != nil:
		metrics.EmailsSentTotal.WithLabelValues(backendSendgrid, metrics.StatusError).Inc()
		return err
	case clientErr != nil:
		metrics.EmailsSentTotal.WithLabelValues(backendSendgrid, metrics.StatusError).Inc()
		return clientErr
	}
	metrics.EmailsSentTotal.WithLabelValues(backendSendgrid, metrics.StatusSuccess).Inc()
	return nil
}

// New returns the sendgrid service when an API key is configured, the console one otherwise.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.SendgridApiKey != "" && !conf.TestMode {
		return NewSendgridService(conf, logger)
	}
	return NewConsoleService(conf, logger)
}
