package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"court-intake-service/internal/db"
	"court-intake-service/internal/logging"
	"court-intake-service/internal/matching"
	"court-intake-service/internal/models"
	"court-intake-service/internal/naming"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]models.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.Record)}
}

func (s *memStore) CreateRecord(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = *r
	return nil
}

func (s *memStore) GetRecord(_ context.Context, id string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, db.ErrNotFound)
	}
	return &r, nil
}

func (s *memStore) GetRecordByDownloadTask(_ context.Context, taskID string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.DownloadTaskID != nil && *r.DownloadTaskID == taskID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
}

func (s *memStore) SaveRecord(_ context.Context, r *models.Record, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[r.ID]
	if !ok {
		return fmt.Errorf("record %s: %w", r.ID, db.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("record %s is %s: %w", r.ID, cur.Status, db.ErrStateConflict)
	}
	r.UpdatedAt = time.Now()
	s.records[r.ID] = *r
	return nil
}

func (s *memStore) SaveFiles(_ context.Context, id string, files, renamed []string, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, db.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("record %s is %s: %w", id, cur.Status, db.ErrStateConflict)
	}
	cur.Files = files
	if renamed != nil {
		cur.RenamedFiles = renamed
	}
	cur.UpdatedAt = time.Now()
	s.records[id] = cur
	return nil
}

func (s *memStore) ListRecords(_ context.Context, f db.RecordFilter) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Record
	for _, r := range s.records {
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, r.Status) {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !r.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		if !f.CreatedAfter.IsZero() && !r.CreatedAt.After(f.CreatedAfter) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// put stores r as-is, bypassing the state guard.
func (s *memStore) put(r models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

func hasStatus(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeParser struct {
	res   models.ParseResult
	err   error
	calls int
}

func (f *fakeParser) Parse(context.Context, string) (models.ParseResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeAcquirer struct {
	mu     sync.Mutex
	tasks  map[string]models.DownloadTask
	links  []string
	err    error
	hang   bool
	nextID int
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{tasks: make(map[string]models.DownloadTask)}
}

func (f *fakeAcquirer) CreateJob(_ context.Context, recordID, link string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.tasks[id] = models.DownloadTask{JobID: id, RecordID: recordID, Link: link, Outcome: models.DownloadPending}
	f.links = append(f.links, link)
	return id, nil
}

func (f *fakeAcquirer) Status(ctx context.Context, jobID string) (models.DownloadTask, error) {
	if f.hang {
		<-ctx.Done()
		return models.DownloadTask{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[jobID]
	if !ok {
		return models.DownloadTask{}, fmt.Errorf("task %s: %w", jobID, db.ErrNotFound)
	}
	return t, nil
}

func (f *fakeAcquirer) finish(jobID string, outcome models.DownloadOutcome, files ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[jobID]
	t.Outcome = outcome
	t.Files = files
	f.tasks[jobID] = t
}

type matchCall struct {
	numbers, names, docs []string
}

type fakeMatcher struct {
	result    matching.Result
	err       error
	closed    []models.Case
	calls     []matchCall
	onResolve func()
}

func (f *fakeMatcher) Resolve(_ context.Context, numbers, names, docs []string) (matching.Result, error) {
	f.calls = append(f.calls, matchCall{numbers: numbers, names: names, docs: docs})
	if f.onResolve != nil {
		f.onResolve()
	}
	return f.result, f.err
}

func (f *fakeMatcher) ClosedCandidates(context.Context, []string) ([]models.Case, error) {
	return f.closed, nil
}

type fakeDirectory struct {
	cases map[int64]*models.Case
	added []string
	onGet func()
}

func (f *fakeDirectory) GetCase(_ context.Context, id int64) (*models.Case, error) {
	if f.onGet != nil {
		f.onGet()
	}
	c, ok := f.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %d: %w", id, db.ErrNotFound)
	}
	return c, nil
}

func (f *fakeDirectory) AddCaseNumber(_ context.Context, id int64, number string) error {
	f.added = append(f.added, number)
	f.cases[id].CaseNumbers = append(f.cases[id].CaseNumbers, number)
	return nil
}

type fakeCaseLog struct {
	logs     map[int64]int64
	attached []string
	next     int64
}

func newFakeCaseLog() *fakeCaseLog {
	return &fakeCaseLog{logs: make(map[int64]int64), next: 100}
}

func (f *fakeCaseLog) CreateLog(_ context.Context, caseID int64, _ string) (int64, error) {
	f.next++
	f.logs[f.next] = caseID
	return f.next, nil
}

func (f *fakeCaseLog) Attach(_ context.Context, _ int64, path string) error {
	f.attached = append(f.attached, path)
	return nil
}

type fakeIntel struct {
	numbers map[string][]string
	names   map[string][]string
}

func (f *fakeIntel) ExtractCaseNumbers(_ context.Context, path string) ([]string, error) {
	return f.numbers[path], nil
}

func (f *fakeIntel) ExtractPartyNames(_ context.Context, path string) ([]string, error) {
	return f.names[path], nil
}

type sentMessage struct {
	caseID int64
	text   string
	docs   []string
}

type fakeMessenger struct {
	sent   []sentMessage
	err    error
	onPost func()
}

func (f *fakeMessenger) PostDocumentNotification(_ context.Context, caseID int64, text string, docs []string) (models.MessageResult, error) {
	if f.onPost != nil {
		f.onPost()
	}
	if f.err != nil {
		return models.MessageResult{}, f.err
	}
	f.sent = append(f.sent, sentMessage{caseID: caseID, text: text, docs: docs})
	return models.MessageResult{Success: true, Message: "ok"}, nil
}

type queuedJob struct {
	job   Job
	delay time.Duration
}

// queueScheduler records jobs so tests can drain them synchronously.
type queueScheduler struct {
	mu    sync.Mutex
	queue []queuedJob
	seen  []queuedJob
}

func (q *queueScheduler) Enqueue(job Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, queuedJob{job: job, delay: delay})
	q.seen = append(q.seen, queuedJob{job: job, delay: delay})
}

func (q *queueScheduler) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return Job{}, false
	}
	j := q.queue[0]
	q.queue = q.queue[1:]
	return j.job, true
}

func (q *queueScheduler) drain(t *testing.T, r Runner) {
	t.Helper()
	for i := 0; i < 50; i++ {
		job, ok := q.pop()
		if !ok {
			return
		}
		require.NoError(t, r.Run(context.Background(), job))
	}
	t.Fatal("scheduler did not settle")
}

type transitions struct {
	mu       sync.Mutex
	statuses []models.Status
}

func (o *transitions) RecordChanged(rec models.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, rec.Status)
}

type harness struct {
	proc      *Processor
	store     *memStore
	parser    *fakeParser
	acquirer  *fakeAcquirer
	matcher   *fakeMatcher
	directory *fakeDirectory
	caseLog   *fakeCaseLog
	intel     *fakeIntel
	messenger *fakeMessenger
	sched     *queueScheduler
	observed  *transitions
	docDir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		parser:   &fakeParser{res: models.ParseResult{Kind: models.KindDocumentDelivery}},
		acquirer: newFakeAcquirer(),
		matcher:  &fakeMatcher{},
		directory: &fakeDirectory{cases: map[int64]*models.Case{
			7: {ID: 7, Name: "张三诉李四", Status: models.CaseActive, CaseNumbers: []string{"（2024）粤0106民初1号"}},
		}},
		caseLog:   newFakeCaseLog(),
		intel:     &fakeIntel{},
		messenger: &fakeMessenger{},
		sched:     &queueScheduler{},
		observed:  &transitions{},
		docDir:    t.TempDir(),
	}
	h.proc = New(Deps{
		Store:     h.store,
		Parser:    h.parser,
		Acquirer:  h.acquirer,
		Matcher:   h.matcher,
		Directory: h.directory,
		CaseLog:   h.caseLog,
		Namer:     naming.New(),
		Intel:     h.intel,
		Messenger: h.messenger,
		Scheduler: h.sched,
		Observer:  h.observed,
	}, Options{
		MaxRetries:      2,
		RetryDelay:      time.Minute,
		IsolatedTimeout: time.Second,
		DocumentDir:     h.docDir,
	}, logging.NewNop())
	return h
}

func (h *harness) record(t *testing.T, id string) *models.Record {
	t.Helper()
	rec, err := h.store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}

// putParsed stores a PENDING record that was parsed on an earlier pass, the
// way a retry leaves it.
func (h *harness) putParsed(id string, links, names []string) {
	kind := models.KindDocumentDelivery
	h.store.put(models.Record{
		ID:            id,
		Content:       "送达",
		Kind:          &kind,
		DownloadLinks: links,
		PartyNames:    names,
		Status:        models.StatusPending,
		RetryCount:    1,
	})
}

func (h *harness) matchCase(id int64) {
	h.matcher.result = matching.Result{Case: h.directory.cases[id], Tier: matching.TierCaseNumber, Reason: "test"}
}
