package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"court-intake-service/internal/db"
	"court-intake-service/internal/logging"
	"court-intake-service/internal/models"
	"court-intake-service/internal/pipeline"
	"court-intake-service/internal/utils"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerCommitsEveryMessageAndRetriesTransientErrors(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("flaky")},
		{Offset: 3, Value: []byte("poison")},
	}}
	var mu sync.Mutex
	calls := map[string]int{}
	handle := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		v := string(msg.Value)
		calls[v]++
		switch {
		case v == "flaky" && calls[v] < 2:
			return errors.New("db unavailable")
		case v == "poison":
			return utils.Permanent{Err: errors.New("bad json")}
		}
		return nil
	}
	c := newConsumer(reader, "court_messages", handle, logging.NewNop())
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"ok": 1, "flaky": 2, "poison": 1}, calls)
}

type fakeSubmitter struct {
	content  []string
	received []*time.Time
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, content string, receivedAt *time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.content = append(f.content, content)
	f.received = append(f.received, receivedAt)
	return "id", nil
}

func TestInboundHandlerAcceptsJSONAndPlainText(t *testing.T) {
	sub := &fakeSubmitter{}
	h := InboundHandler(sub)
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	payload, _ := json.Marshal(models.InboundMessage{Content: "送达通知", ReceivedAt: &at})
	require.NoError(t, h(context.Background(), kafka.Message{Value: payload}))
	msgTime := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte("  立案通知 \n"), Time: msgTime}))

	assert.Equal(t, []string{"送达通知", "立案通知"}, sub.content)
	assert.True(t, sub.received[0].Equal(at))
	assert.True(t, sub.received[1].Equal(msgTime))
}

func TestInboundHandlerClassifiesErrors(t *testing.T) {
	var perm utils.Permanent

	err := InboundHandler(&fakeSubmitter{})(context.Background(), kafka.Message{Value: []byte(`{"content": `)})
	assert.True(t, errors.As(err, &perm))

	err = InboundHandler(&fakeSubmitter{err: pipeline.ErrEmptyContent})(context.Background(), kafka.Message{Value: []byte(" ")})
	assert.True(t, errors.As(err, &perm))

	err = InboundHandler(&fakeSubmitter{err: errors.New("db down")})(context.Background(), kafka.Message{Value: []byte("x")})
	require.Error(t, err)
	assert.False(t, errors.As(err, &perm))
}

type fakeTasks struct {
	tasks     map[string]models.DownloadTask
	completed []models.DownloadEvent
}

func (f *fakeTasks) CreateDownloadTask(_ context.Context, t models.DownloadTask) error {
	f.tasks[t.JobID] = t
	return nil
}

func (f *fakeTasks) GetDownloadTask(_ context.Context, id string) (models.DownloadTask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return t, fmt.Errorf("task %s: %w", id, db.ErrNotFound)
	}
	return t, nil
}

func (f *fakeTasks) CompleteDownloadTask(_ context.Context, ev models.DownloadEvent) error {
	if _, ok := f.tasks[ev.JobID]; !ok {
		return fmt.Errorf("task %s: %w", ev.JobID, db.ErrNotFound)
	}
	f.completed = append(f.completed, ev)
	return nil
}

type fakeSink struct{ events []models.DownloadEvent }

func (f *fakeSink) HandleDownloadEvent(_ context.Context, ev models.DownloadEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func TestDownloadEventHandler(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]models.DownloadTask{"j1": {JobID: "j1"}}}
	sink := &fakeSink{}
	h := DownloadEventHandler(tasks, sink)

	require.NoError(t, h(context.Background(), kafka.Message{
		Value: []byte(`{"job_id":"j1","outcome":"success","files":["/data/j1/a.pdf"]}`),
	}))
	require.Len(t, sink.events, 1)
	assert.Equal(t, []string{"/data/j1/a.pdf"}, sink.events[0].Files)
	assert.Len(t, tasks.completed, 1)

	var perm utils.Permanent
	err := h(context.Background(), kafka.Message{Value: []byte(`{"job_id":"j9","outcome":"failure"}`)})
	assert.True(t, errors.As(err, &perm), "unknown jobs are skipped")
	assert.Len(t, sink.events, 1)
}

func TestDecodeDownloadEventValidates(t *testing.T) {
	_, err := DecodeDownloadEvent([]byte(`{"outcome":"success"}`))
	assert.Error(t, err)
	_, err = DecodeDownloadEvent([]byte(`{"job_id":"j1","outcome":"pending"}`))
	assert.Error(t, err)
	ev, err := DecodeDownloadEvent([]byte(`{"job_id":"j1","outcome":"failure","error":"404"}`))
	require.NoError(t, err)
	assert.Equal(t, "404", ev.Error)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestAcquirerPublishesJobAndTracksTask(t *testing.T) {
	w := &fakeWriter{}
	tasks := &fakeTasks{tasks: map[string]models.DownloadTask{}}
	a := &Acquirer{writer: w, tasks: tasks}

	jobID, err := a.CreateJob(context.Background(), "rec-1", "https://court.example/doc")
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "rec-1", string(w.msgs[0].Key))

	var job downloadJob
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &job))
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, "https://court.example/doc", job.Link)

	task, err := a.Status(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadPending, task.Outcome)
	assert.Equal(t, "rec-1", task.RecordID)
}

func TestAcquirerPublishFailure(t *testing.T) {
	a := &Acquirer{writer: &fakeWriter{err: errors.New("no brokers")}, tasks: &fakeTasks{tasks: map[string]models.DownloadTask{}}}
	_, err := a.CreateJob(context.Background(), "rec-1", "https://court.example/doc")
	assert.ErrorContains(t, err, "no brokers")
}
