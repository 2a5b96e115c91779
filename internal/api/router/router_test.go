package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/admin"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/dto"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/handler"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/scheduler"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeScheduler records the parameters it was called with
type fakeScheduler struct {
	params  scheduler.ListParams
	result  *scheduler.ListResult
	next    *domain.Job
	listErr error
	nextErr error
}

func (f *fakeScheduler) List(_ context.Context, p scheduler.ListParams) (*scheduler.ListResult, error) {
	f.params = p
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.result == nil {
		return &scheduler.ListResult{}, nil
	}
	return f.result, nil
}

func (f *fakeScheduler) Next(context.Context) (*domain.Job, error) {
	return f.next, f.nextErr
}

type fakeInspector struct {
	count  int
	queues []admin.QueueInfo
	err    error
}

func (f *fakeInspector) ListQueues(_ context.Context, count int) ([]admin.QueueInfo, error) {
	f.count = count
	return f.queues, f.err
}

func newTestRouter(s handler.JobScheduler, insp admin.Inspector) *gin.Engine {
	return SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Scheduler: s,
		Inspector: insp,
	})
}

func do(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, newTestRouter(&fakeScheduler{}, nil), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestNotFound(t *testing.T) {
	w := do(t, newTestRouter(&fakeScheduler{}, nil), http.MethodGet, "/jobs")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	w := do(t, newTestRouter(&fakeScheduler{}, nil), http.MethodOptions, "/queue")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestListJobs_Params(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected scheduler.ListParams
	}{
		{
			name:     "defaults",
			query:    "",
			expected: scheduler.ListParams{Limit: scheduler.DefaultLimit},
		},
		{
			name:     "non-numeric limit falls back to the default",
			query:    "?limit=abc",
			expected: scheduler.ListParams{Limit: scheduler.DefaultLimit},
		},
		{
			name:     "numeric limit is passed through for clamping",
			query:    "?limit=0",
			expected: scheduler.ListParams{Limit: 0},
		},
		{
			name:  "ordering and token",
			query: "?limit=10&sort=scheduledAt&order=ASC&continuationToken=abc",
			expected: scheduler.ListParams{
				Limit: 10, Sort: "scheduledAt", Order: "ASC", ContinuationToken: "abc",
			},
		},
		{
			name:  "repeated and comma separated statuses",
			query: "?status=pending,scheduled&status=running",
			expected: scheduler.ListParams{
				Limit: scheduler.DefaultLimit, Statuses: []string{"pending", "scheduled", "running"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeScheduler{}
			w := do(t, newTestRouter(s, nil), http.MethodGet, "/queue"+tt.query)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expected, s.params)
		})
	}
}

func TestListJobs_Response(t *testing.T) {
	at := base.Add(time.Hour)
	token := "next-page"
	s := &fakeScheduler{result: &scheduler.ListResult{
		Jobs: []*domain.Job{
			{ID: "b", FileID: "file-b", Status: domain.StatusScheduled, ScheduledAt: &at, CreatedAt: base},
			{ID: "a", FileID: "file-a", Status: domain.StatusPending, CreatedAt: base},
		},
		ContinuationToken: &token,
	}}

	w := do(t, newTestRouter(s, nil), http.MethodGet, "/queue?limit=2")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"jobs": [
			{"id":"b","fileId":"file-b","status":"scheduled","scheduledAt":"2026-03-01T13:00:00.000Z","createdAt":"2026-03-01T12:00:00.000Z"},
			{"id":"a","fileId":"file-a","status":"pending","scheduledAt":null,"createdAt":"2026-03-01T12:00:00.000Z"}
		],
		"count": 2,
		"continuationToken": "next-page"
	}`, w.Body.String())
}

func TestListJobs_EmptyPage(t *testing.T) {
	w := do(t, newTestRouter(&fakeScheduler{}, nil), http.MethodGet, "/queue")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[],"count":0,"continuationToken":null}`, w.Body.String())
}

func TestListJobs_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", &scheduler.ValidationError{Field: "sort", Value: "fileId"}, http.StatusBadRequest},
		{"store unavailable", domain.NewUnavailableError("query page", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"store failure", domain.NewPersistenceError("query page", errors.New("disk quota exceeded on shard 7")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestRouter(&fakeScheduler{listErr: tt.err}, nil), http.MethodGet, "/queue")

			assert.Equal(t, tt.expected, w.Code)
			var body dto.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestNextJob(t *testing.T) {
	t.Run("eligible job", func(t *testing.T) {
		s := &fakeScheduler{next: &domain.Job{ID: "A", FileID: "file-a", Status: domain.StatusPending, CreatedAt: base}}
		w := do(t, newTestRouter(s, nil), http.MethodGet, "/queue/next")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			`{"job":{"id":"A","fileId":"file-a","status":"pending","scheduledAt":null,"createdAt":"2026-03-01T12:00:00.000Z"}}`,
			w.Body.String())
	})

	t.Run("nothing eligible", func(t *testing.T) {
		w := do(t, newTestRouter(&fakeScheduler{}, nil), http.MethodGet, "/queue/next")

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("store failure is not reported as empty", func(t *testing.T) {
		s := &fakeScheduler{nextErr: domain.NewPersistenceError("find next eligible", errors.New("boom"))}
		w := do(t, newTestRouter(s, nil), http.MethodGet, "/queue/next")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("store unavailable", func(t *testing.T) {
		s := &fakeScheduler{nextErr: domain.NewUnavailableError("find next eligible", context.DeadlineExceeded)}
		w := do(t, newTestRouter(s, nil), http.MethodGet, "/queue/next")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestListQueues_Count(t *testing.T) {
	tests := []struct {
		target   string
		expected int
	}{
		{"/queues", 1},
		{"/queues?count=7", 7},
		{"/queues/5", 5},
		{"/queues/0", 1},
		{"/queues/500", 100},
		{"/queues/abc", 1},
		{"/queues/3?count=9", 3},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			insp := &fakeInspector{}
			w := do(t, newTestRouter(&fakeScheduler{}, insp), http.MethodGet, tt.target)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expected, insp.count)
		})
	}
}

func TestListQueues_Response(t *testing.T) {
	idle := base.Add(-time.Minute)
	insp := &fakeInspector{queues: []admin.QueueInfo{
		{Name: "print-queue", ActiveMessageCount: 4, DeadLetterMessageCount: 2, UpdatedOn: &idle},
	}}

	w := do(t, newTestRouter(&fakeScheduler{}, insp), http.MethodGet, "/queues/10")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"count": 1,
		"queues": [{
			"name": "print-queue",
			"activeMessageCount": 4,
			"deadLetterMessageCount": 2,
			"createdOn": null,
			"updatedOn": "2026-03-01T11:59:00.000Z"
		}]
	}`, w.Body.String())
}

func TestListQueues_Errors(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		w := do(t, newTestRouter(&fakeScheduler{}, nil), http.MethodGet, "/queues")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("unreachable", func(t *testing.T) {
		insp := &fakeInspector{err: fmt.Errorf("%w: dial tcp: connection refused", admin.ErrUnavailable)}
		w := do(t, newTestRouter(&fakeScheduler{}, insp), http.MethodGet, "/queues")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("management API error", func(t *testing.T) {
		insp := &fakeInspector{err: errors.New("management API returned 401")}
		w := do(t, newTestRouter(&fakeScheduler{}, insp), http.MethodGet, "/queues")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"management API returned 401"}`, w.Body.String())
	})
}

// TestListJobs_PaginatesMemoryStore walks a real engine through HTTP the
// way a client would, following continuation tokens until they run out
func TestListJobs_PaginatesMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := 0; i < 23; i++ {
		job := &domain.Job{
			ID:        fmt.Sprintf("job-%02d", i),
			FileID:    fmt.Sprintf("file-%02d", i),
			Status:    domain.StatusPending,
			CreatedAt: base.Add(time.Duration(i/2) * time.Minute),
		}
		require.NoError(t, s.Upsert(ctx, job))
	}

	engine := scheduler.New(s, scheduler.WithClock(func() time.Time { return base }))
	r := newTestRouter(engine, nil)

	seen := make(map[string]bool)
	token := ""
	for pages := 0; pages < 10; pages++ {
		target := "/queue?limit=5&order=asc"
		if token != "" {
			target += "&continuationToken=" + url.QueryEscape(token)
		}
		w := do(t, r, http.MethodGet, target)
		require.Equal(t, http.StatusOK, w.Code)

		var body dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, len(body.Jobs), body.Count)
		for _, j := range body.Jobs {
			assert.False(t, seen[j.ID], "duplicate %s", j.ID)
			seen[j.ID] = true
		}

		if body.ContinuationToken == nil {
			break
		}
		token = *body.ContinuationToken
	}
	assert.Len(t, seen, 23)

	// a token minted for one ordering is rejected under another
	w := do(t, r, http.MethodGet, "/queue?limit=5&order=asc")
	var first dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.NotNil(t, first.ContinuationToken)

	w = do(t, r, http.MethodGet, "/queue?order=desc&continuationToken="+url.QueryEscape(*first.ContinuationToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/queue?sort=fileId")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	next := do(t, r, http.MethodGet, "/queue/next")
	require.Equal(t, http.StatusOK, next.Code)
	assert.Contains(t, next.Body.String(), `"id":"job-00"`)

}

// flakyStore fails listings while broken is set
type flakyStore struct {
	*memory.Store
	broken atomic.Bool
}

func (f *flakyStore) QueryPage(ctx context.Context, q store.Query) (*store.Page, error) {
	if f.broken.Load() {
		return nil, domain.NewPersistenceError("query page", errors.New("disk quota exceeded on shard 7"))
	}
	return f.Store.QueryPage(ctx, q)
}

func TestListJobs_RecoversAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: memory.New()}
	for i := 0; i < 4; i++ {
		require.NoError(t, flaky.Upsert(ctx, &domain.Job{
			ID:        fmt.Sprintf("job-%d", i),
			FileID:    fmt.Sprintf("file-%d", i),
			Status:    domain.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	engine := scheduler.New(store.WithTimeout(flaky, time.Second))
	r := newTestRouter(engine, nil)

	flaky.broken.Store(true)
	w := do(t, r, http.MethodGet, "/queue")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk quota exceeded on shard 7")

	// the same router serves the next request once the store recovers
	flaky.broken.Store(false)
	w = do(t, r, http.MethodGet, "/queue")
	require.Equal(t, http.StatusOK, w.Code)

	var body dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Count)
	assert.Len(t, body.Jobs, 4)
	assert.Nil(t, body.ContinuationToken)

	next := do(t, r, http.MethodGet, "/queue/next")
	assert.Equal(t, http.StatusOK, next.Code)
}
