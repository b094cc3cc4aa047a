package emailsvc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
		Subject: "Hello",
		BodyStr: "Hi Ada",
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ClearSentMessages()
	svc := NewConsoleServiceMock(core.NewTestConfig())

	noRecipient := newMessage()
	noRecipient.To = nil
	svc.SendMessages(newMessage(), noRecipient)

	sent := LastSentMessages(10)
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello", sent[0].Subject)
	assert.Equal(t, "Hi Ada", sent[0].TextContent)

	ClearSentMessages()
	assert.Empty(t, LastSentMessages(10))
}

func TestConsoleService_SendWithAttachment(t *testing.T) {
	svc := consoleService{subjPrefix: "[TOS] ", disableOutput: true}
	msg := newMessage()
	require.NoError(t, msg.Render())
	require.NoError(t, msg.Attach(bytes.NewBufferString("a,b\n1,2\n"), "data.csv", "text/csv"))
	assert.NotPanics(t, func() { svc.send(*msg) })
}

func TestSendgridService_Send(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendgridPath, r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.SendgridApiKey = "sg-key"
	svc := newSendgridService(conf, nopLogger{}, srv.URL)

	msg := newMessage()
	require.NoError(t, msg.Render())
	require.NoError(t, svc.send(*msg))

	personalizations, ok := body["personalizations"].([]interface{})
	require.True(t, ok)
	require.Len(t, personalizations, 1)
	assert.Equal(t, "[TOS] Hello", personalizations[0].(map[string]interface{})["subject"])
}

func TestSendgridService_ClientErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := newSendgridService(core.NewTestConfig(), nopLogger{}, srv.URL)
	for i := 0; i < breakerMaxFailures+1; i++ {
		assert.Error(t, svc.send(*newMessage()))
	}
	assert.Equal(t, gobreaker.StateClosed, svc.breaker.State())
}

func TestSendgridService_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newSendgridService(core.NewTestConfig(), nopLogger{}, srv.URL)
	for i := 0; i < breakerMaxFailures; i++ {
		assert.Error(t, svc.send(*newMessage()))
	}
	assert.Equal(t, gobreaker.StateOpen, svc.breaker.State())

	err := svc.send(*newMessage())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, breakerMaxFailures, atomic.LoadInt32(&calls))
}
