package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/pkg/queue"
)

type fakeMailer struct {
	err  error
	sent []queue.EmailPayload
}

func (m *fakeMailer) Send(_ context.Context, p queue.EmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, p)
	return nil
}

type fakeLog struct {
	sent   []uuid.UUID
	failed map[uuid.UUID]string
}

func (l *fakeLog) MarkSent(_ context.Context, id uuid.UUID, _ time.Time) error {
	l.sent = append(l.sent, id)
	return nil
}

func (l *fakeLog) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if l.failed == nil {
		l.failed = map[uuid.UUID]string{}
	}
	l.failed[id] = reason
	return nil
}

func emailJob(t *testing.T, logID uuid.UUID) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.EmailPayload{LogID: logID, EmailType: "coupon_otp", RecipientEmail: "a@example.com"})
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Type: queue.JobTypeEmail, Payload: body}
}

func TestEmailProcessor_Process(t *testing.T) {
	logID := uuid.New()
	mailer, logs := &fakeMailer{}, &fakeLog{}
	p := NewEmailProcessor(nil, mailer, logs, nil)

	require.NoError(t, p.Process(context.Background(), emailJob(t, logID)))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []uuid.UUID{logID}, logs.sent)
}

func TestEmailProcessor_ProcessFailure(t *testing.T) {
	logID := uuid.New()
	mailer, logs := &fakeMailer{err: errors.New("535 auth failed")}, &fakeLog{}
	p := NewEmailProcessor(nil, mailer, logs, nil)

	err := p.Process(context.Background(), emailJob(t, logID))
	require.Error(t, err)
	assert.Empty(t, logs.sent)
	assert.Contains(t, logs.failed[logID], "535")
}

func TestEmailProcessor_RejectsOtherJobTypes(t *testing.T) {
	p := NewEmailProcessor(nil, &fakeMailer{}, &fakeLog{}, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "analytics"})
	assert.Error(t, err)
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSweeper) Sweep(context.Context) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 2, 1, nil
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a cron", &fakeSweeper{}, nil)
	assert.Error(t, err)

	sw := &fakeSweeper{}
	s, err := NewScheduler("*/5 * * * *", sw, nil)
	require.NoError(t, err)
	s.RunOnce()
	assert.Equal(t, 1, sw.calls)
}
