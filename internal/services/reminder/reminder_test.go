package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/taskflowhq/billing-service/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) FindInternalExpiringBetween(ctx context.Context, after, until time.Time) ([]*models.ExpiringSubscription, error) {
	args := m.Called(ctx, after, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExpiringSubscription), args.Error(1)
}

func (m *RepoMock) CreateNotification(ctx context.Context, n models.Notification) (int64, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(int64), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishReminder(msg models.ReminderMessage) error {
	return m.Called(msg).Error(0)
}

func NewNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func expiringSub(userID string, status models.SubscriptionStatus, hasPM bool) *models.ExpiringSubscription {
	return &models.ExpiringSubscription{
		Subscription: models.Subscription{
			UserID:           userID,
			PlanID:           2,
			Status:           status,
			BillingMode:      models.BillingModeInternal,
			CurrentPeriodEnd: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		},
		Email:            "user@example.com",
		Locale:           "en",
		PlanName:         "Pro",
		HasPaymentMethod: hasPM,
	}
}

func TestReminder_Run_WindowBounds(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := new(RepoMock)

	repo.On("FindInternalExpiringBetween", mock.Anything, now, now.Add(24*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()
	repo.On("FindInternalExpiringBetween", mock.Anything, now.Add(24*time.Hour), now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()

	svc := New(repo, nil, NewNoopLogger(), 5)
	result, err := svc.Run(context.Background(), now)

	assert.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, 0, result.Notified)
	repo.AssertExpectations(t)
}

func TestReminder_Run_NotifiesAndPublishes(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := new(RepoMock)
	publisher := new(PublisherMock)

	tomorrow := expiringSub("user-1", models.StatusTrialing, false)
	inThreeDays := expiringSub("user-2", models.StatusActive, true)

	repo.On("FindInternalExpiringBetween", mock.Anything, now, now.Add(24*time.Hour)).
		Return([]*models.ExpiringSubscription{tomorrow}, nil).Once()
	repo.On("FindInternalExpiringBetween", mock.Anything, now.Add(24*time.Hour), now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{inThreeDays}, nil).Once()

	repo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		if n.UserID != "user-1" || n.Type != models.NotificationSubscriptionExpiring {
			return false
		}
		var meta models.ReminderMetadata
		if err := json.Unmarshal(n.Metadata, &meta); err != nil {
			return false
		}
		return meta.DaysLeft == 1 && meta.IsTrial && !meta.HasPaymentMethod
	})).Return(int64(1), nil).Once()
	repo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		var meta models.ReminderMetadata
		if err := json.Unmarshal(n.Metadata, &meta); err != nil {
			return false
		}
		return n.UserID == "user-2" && meta.DaysLeft == 3 && !meta.IsTrial && meta.HasPaymentMethod
	})).Return(int64(2), nil).Once()

	publisher.On("PublishReminder", mock.MatchedBy(func(msg models.ReminderMessage) bool {
		return msg.Email == "user@example.com" && msg.DaysLeft == 1 && msg.IsTrial
	})).Return(nil).Once()
	publisher.On("PublishReminder", mock.MatchedBy(func(msg models.ReminderMessage) bool {
		return msg.DaysLeft == 3 && msg.HasPaymentMethod
	})).Return(nil).Once()

	svc := New(repo, publisher, NewNoopLogger(), 5)
	result, err := svc.Run(context.Background(), now)

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Notified)
	assert.Empty(t, result.Errors)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestReminder_Run_RowFailureDoesNotAbort(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := new(RepoMock)

	broken := expiringSub("user-broken", models.StatusActive, false)
	healthy := expiringSub("user-healthy", models.StatusActive, false)

	repo.On("FindInternalExpiringBetween", mock.Anything, now, now.Add(24*time.Hour)).
		Return([]*models.ExpiringSubscription{broken, healthy}, nil).Once()
	repo.On("FindInternalExpiringBetween", mock.Anything, now.Add(24*time.Hour), now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()

	repo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.UserID == "user-broken"
	})).Return(int64(0), errors.New("insert failed")).Once()
	repo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.UserID == "user-healthy"
	})).Return(int64(3), nil).Once()

	svc := New(repo, nil, NewNoopLogger(), 5)
	result, err := svc.Run(context.Background(), now)

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Notified)
	assert.Len(t, result.Errors, 1)
	repo.AssertExpectations(t)
}

func TestReminder_Run_ErrorListIsCapped(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := new(RepoMock)

	var subs []*models.ExpiringSubscription
	for range 4 {
		subs = append(subs, expiringSub("user-broken", models.StatusActive, false))
	}

	repo.On("FindInternalExpiringBetween", mock.Anything, now, now.Add(24*time.Hour)).
		Return(subs, nil).Once()
	repo.On("FindInternalExpiringBetween", mock.Anything, now.Add(24*time.Hour), now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()
	repo.On("CreateNotification", mock.Anything, mock.Anything).
		Return(int64(0), errors.New("insert failed")).Times(4)

	svc := New(repo, nil, NewNoopLogger(), 2)
	result, err := svc.Run(context.Background(), now)

	assert.NoError(t, err)
	assert.Equal(t, 0, result.Notified)
	assert.Len(t, result.Errors, 2)
}

func TestComposeReminder_Localization(t *testing.T) {
	tests := []struct {
		name      string
		locale    string
		daysLeft  int
		isTrial   bool
		hasPM     bool
		wantTitle string
	}{
		{
			name:      "english trial singular day",
			locale:    "en",
			daysLeft:  1,
			isTrial:   true,
			wantTitle: "Your Pro trial ends in 1 day",
		},
		{
			name:      "english subscription plural days",
			locale:    "en",
			daysLeft:  3,
			wantTitle: "Your Pro subscription expires in 3 days",
		},
		{
			name:      "unknown locale falls back to english",
			locale:    "de",
			daysLeft:  3,
			wantTitle: "Your Pro subscription expires in 3 days",
		},
		{
			name:      "lithuanian subscription",
			locale:    "lt",
			daysLeft:  3,
			wantTitle: "Jūsų Pro prenumerata baigsis po 3 dienų",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := composeReminder(tt.locale, "Pro", tt.daysLeft, tt.isTrial, tt.hasPM)
			assert.Equal(t, tt.wantTitle, title)
			assert.NotEmpty(t, body)
		})
	}
}
