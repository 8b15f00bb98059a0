package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) DialAndSend(msgs ...*gomail.Message) error {
	args := m.Called(msgs)
	return args.Error(0)
}

func paymentEvent() Event {
	return Event{
		Kind:  PaymentApproved,
		Group: models.Group{ID: "g1", Name: "Roommates"},
		Actor: "alice",
		Payment: &models.Payment{
			PayerID: "bob",
			PayeeID: "alice",
			Amount:  money.New(1250, "USD"),
			State:   models.StateApproved,
			Note:    "rent",
		},
		Recipients: []models.Member{
			{ID: "bob", Name: "Bob", Email: "bob@example.com"},
			{ID: "carol", Name: "Carol"},
		},
	}
}

func TestMailNotifier(t *testing.T) {
	sender := new(mockSender)
	sender.On("DialAndSend", mock.MatchedBy(func(msgs []*gomail.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		var buf bytes.Buffer
		if _, err := msgs[0].WriteTo(&buf); err != nil {
			return false
		}
		return bytes.Contains(buf.Bytes(), []byte("bob@example.com")) &&
			bytes.Contains(buf.Bytes(), []byte("12.50 USD"))
	})).Return(nil).Once()

	n := NewMailNotifierWithSender("ledger@example.com", sender)
	require.NoError(t, n.Notify(context.Background(), paymentEvent()))
	sender.AssertExpectations(t)
}

func TestMailNotifierNoAddresses(t *testing.T) {
	sender := new(mockSender)
	ev := paymentEvent()
	ev.Recipients = []models.Member{{ID: "carol", Name: "Carol"}}

	n := NewMailNotifierWithSender("ledger@example.com", sender)
	require.NoError(t, n.Notify(context.Background(), ev))
	sender.AssertNotCalled(t, "DialAndSend", mock.Anything)
}

func TestMailNotifierSendError(t *testing.T) {
	sender := new(mockSender)
	sender.On("DialAndSend", mock.Anything).Return(errors.New("connection refused")).Once()

	n := NewMailNotifierWithSender("ledger@example.com", sender)
	err := n.Notify(context.Background(), paymentEvent())
	assert.ErrorContains(t, err, "connection refused")
}

func TestEventSubject(t *testing.T) {
	ev := paymentEvent()
	assert.Equal(t, "[Roommates] Payment of 12.50 USD approved", ev.Subject())
	assert.Contains(t, ev.Body(), "Note: rent")

	ev = Event{
		Kind:    ExpenseRejected,
		Group:   models.Group{Name: "Trip"},
		Expense: &models.Expense{Description: "Hotel", Total: money.New(30000, "USD"), PayerID: "alice"},
	}
	assert.Equal(t, `[Trip] Expense "Hotel" rejected`, ev.Subject())
}
