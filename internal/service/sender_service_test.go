package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks map[string]*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := ""
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id, _ = o.Value().(string)
		}
	}
	if q.tasks == nil {
		q.tasks = make(map[string]*asynq.Task)
	}
	if _, ok := q.tasks[id]; ok {
		return nil, asynq.ErrTaskIDConflict
	}
	q.tasks[id] = task
	return &asynq.TaskInfo{ID: id}, nil
}

type sentEmail struct {
	to, subject, plain, html string
}

type fakeMailer struct {
	sent []sentEmail
}

func (m *fakeMailer) SendEmail(toEmail, _, subject, plainText, html string) error {
	m.sent = append(m.sent, sentEmail{to: toEmail, subject: subject, plain: plainText, html: html})
	return nil
}

type fakeSMS struct {
	sent []string
}

func (s *fakeSMS) SendSMS(toNumber, body string) error {
	s.sent = append(s.sent, toNumber+"|"+body)
	return nil
}

func TestSenderNotify_DeduplicatesByBookingAndKind(t *testing.T) {
	h := newHarness(t)
	queue := &fakeQueue{}
	sender := &SenderService{Queue: queue, Logger: zap.NewNop()}
	b := holdAt(t, h, at(9, 0))
	ctx := context.Background()

	require.NoError(t, sender.Notify(ctx, b, NotifyConfirmed))
	require.NoError(t, sender.Notify(ctx, b, NotifyConfirmed))
	require.NoError(t, sender.Notify(ctx, b, NotifyRefunded))

	require.Len(t, queue.tasks, 2)
	task := queue.tasks["booking:"+b.ID+":confirmed"]
	require.NotNil(t, task)
	assert.Equal(t, TypeBookingNotification, task.Type())

	var p NotificationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, NotificationPayload{BookingID: b.ID, Kind: NotifyConfirmed}, p)
}

func TestSenderDeliver_ComposesInCustomerLanguage(t *testing.T) {
	h := newHarness(t)
	mailer := &fakeMailer{}
	sms := &fakeSMS{}
	sender := &SenderService{
		Bookings: h.store,
		Calendar: h.store,
		Email:    mailer,
		SMS:      sms,
		Logger:   zap.NewNop(),
	}
	b := holdAt(t, h, at(9, 0))

	err := sender.Deliver(context.Background(), NotificationPayload{BookingID: b.ID, Kind: NotifyConfirmed})
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ana@example.com", mailer.sent[0].to)
	assert.Equal(t, "Tu reserva en Studio está confirmada", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].plain, "Servicio: Haircut")
	assert.Contains(t, mailer.sent[0].html, b.ID)

	require.Len(t, sms.sent, 1)
	assert.True(t, strings.HasPrefix(sms.sent[0], "+34600111222|Studio: tu reserva de Haircut está confirmada"))
}

func TestStatusTranslation(t *testing.T) {
	assert.Equal(t, "confermata", StatusTranslation(NotifyConfirmed, "it"))
	assert.Equal(t, "refunded", StatusTranslation(NotifyRefunded, "de"))
	assert.Equal(t, "other", StatusTranslation("other", "es"))
}
