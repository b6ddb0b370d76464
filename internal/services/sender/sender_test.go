package sender

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/taskflowhq/billing-service/internal/lib/smtp"
	"github.com/taskflowhq/billing-service/internal/models"
)

type TransportMock struct{ mock.Mock }

func (m *TransportMock) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *TransportMock) GetSMTPUser() string {
	return m.Called().String(0)
}

func (m *TransportMock) Configured() bool {
	return m.Called().Bool(0)
}

type ClientMock struct {
	mock.Mock
	written []byte
}

func (m *ClientMock) Mail(from string) error { return m.Called(from).Error(0) }
func (m *ClientMock) Rcpt(to string) error   { return m.Called(to).Error(0) }
func (m *ClientMock) Quit() error            { return m.Called().Error(0) }
func (m *ClientMock) Close() error           { return m.Called().Error(0) }

type writeCloser struct{ c *ClientMock }

func (w writeCloser) Write(p []byte) (int, error) {
	w.c.written = append(w.c.written, p...)
	return len(p), nil
}

func (w writeCloser) Close() error { return nil }

func (m *ClientMock) Data() (io.WriteCloser, error) {
	args := m.Called()
	return writeCloser{c: m}, args.Error(0)
}

func NewNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func reminderBody(t *testing.T, msg models.ReminderMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	assert.NoError(t, err)
	return body
}

func TestSendReminderEmail_Success(t *testing.T) {
	transport := new(TransportMock)
	client := new(ClientMock)

	transport.On("Configured").Return(true)
	transport.On("GetSMTPUser").Return("billing@taskflow.example")
	transport.On("Connect").Return(client, nil).Once()
	client.On("Mail", "billing@taskflow.example").Return(nil).Once()
	client.On("Rcpt", "user@example.com").Return(nil).Once()
	client.On("Data").Return(nil).Once()
	client.On("Quit").Return(nil).Once()
	client.On("Close").Return(nil).Once()

	svc := New(transport, NewNoopLogger())
	err := svc.SendReminderEmail(reminderBody(t, models.ReminderMessage{
		Email:     "user@example.com",
		Locale:    "en",
		PlanName:  "Pro",
		PeriodEnd: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		DaysLeft:  1,
	}))

	assert.NoError(t, err)
	assert.Contains(t, string(client.written), "Subject: Your Pro subscription expires in 1 day")
	assert.Contains(t, string(client.written), "To: user@example.com")
	transport.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestSendReminderEmail_UnconfiguredSMTPIsSoftSkip(t *testing.T) {
	transport := new(TransportMock)
	transport.On("Configured").Return(false)

	svc := New(transport, NewNoopLogger())
	err := svc.SendReminderEmail(reminderBody(t, models.ReminderMessage{
		Email: "user@example.com", Locale: "en", PlanName: "Pro", DaysLeft: 1,
	}))

	// Ошибка вернула бы сообщение в очередь навсегда.
	assert.NoError(t, err)
	transport.AssertNotCalled(t, "Connect")
}

func TestSendReminderEmail_BadPayload(t *testing.T) {
	transport := new(TransportMock)

	svc := New(transport, NewNoopLogger())
	err := svc.SendReminderEmail([]byte("not json"))

	assert.Error(t, err)
}

func TestComposeEmail_Localization(t *testing.T) {
	subject, body := composeEmail(models.ReminderMessage{
		Locale:    "lt",
		PlanName:  "Pro",
		PeriodEnd: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		DaysLeft:  3,
		IsTrial:   true,
	})
	assert.Contains(t, subject, "bandomasis laikotarpis")
	assert.Contains(t, body, "2025-06-02")

	subject, body = composeEmail(models.ReminderMessage{
		Locale:           "en",
		PlanName:         "Pro",
		PeriodEnd:        time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		DaysLeft:         3,
		HasPaymentMethod: true,
	})
	assert.Contains(t, subject, "expires in 3 days")
	assert.Contains(t, body, "charged automatically")
}
