package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/api/middleware"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/events"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/phrazzld/scry-notes/internal/task"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "api-test-secret-with-at-least-32-bytes"

type runnerFunc func(ctx context.Context, t *domain.Task, rep task.Reporter) (*domain.Result, error)

func (f runnerFunc) Run(ctx context.Context, t *domain.Task, rep task.Reporter) (*domain.Result, error) {
	return f(ctx, t, rep)
}

// gatedRunner reports a summarization stage, waits for release, then
// completes. It stops early when the run context ends.
func gatedRunner(release <-chan struct{}) runnerFunc {
	return func(ctx context.Context, t *domain.Task, rep task.Reporter) (*domain.Result, error) {
		if err := rep.Advance(domain.StageSummarization, 0); err != nil {
			return nil, err
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, &task.StageError{Stage: domain.StageSummarization, Err: ctx.Err()}
		}
		if err := rep.Record(domain.IntermediateResult{Stage: domain.StageSummarization, Payload: "summary"}); err != nil {
			return nil, err
		}
		return &domain.Result{Summary: "summary", ContentID: "content-1"}, nil
	}
}

func released() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type apiFixture struct {
	t         *testing.T
	scheduler *task.Scheduler
	router    http.Handler
	owner     uuid.UUID
}

func newAPIFixture(t *testing.T, runner task.Runner, cfg task.SchedulerConfig) *apiFixture {
	t.Helper()

	if cfg.MaxConcurrentTasks == 0 {
		cfg.MaxConcurrentTasks = 4
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = 5 * time.Second
	}

	log := logger.Discard()
	scheduler := task.NewScheduler(log, task.NewRegistry(), events.NewHub(log, 0), runner, cfg)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	handler := NewTaskHandler(scheduler, log, 20*time.Millisecond)
	auth := middleware.NewAuthMiddleware(testJWTSecret)

	r := chi.NewRouter()
	r.Use(middleware.Trace(log))
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate)
		handler.Routes(r)
	})

	return &apiFixture{t: t, scheduler: scheduler, router: r, owner: uuid.New()}
}

func (f *apiFixture) token(owner uuid.UUID) string {
	f.t.Helper()
	token, err := middleware.IssueToken(testJWTSecret, owner, time.Now(), time.Hour)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path string, body any, owner uuid.UUID) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(f.t, json.NewEncoder(&buf).Encode(b))
	}

	r := httptest.NewRequest(method, path, &buf)
	if owner != uuid.Nil {
		r.Header.Set("Authorization", "Bearer "+f.token(owner))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func (f *apiFixture) submit(texts ...string) uuid.UUID {
	f.t.Helper()

	req := SubmitRequest{}
	for _, text := range texts {
		req.Inputs = append(req.Inputs, InputPayload{Text: text})
	}
	w := f.do(http.MethodPost, "/api/tasks", req, f.owner)
	require.Equal(f.t, http.StatusAccepted, w.Code, w.Body.String())

	var resp SubmitResponse
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.TaskID
}

func (f *apiFixture) waitForStatus(id uuid.UUID, want domain.TaskStatus) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		view, err := f.scheduler.GetStatus(id)
		return err == nil && view.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
