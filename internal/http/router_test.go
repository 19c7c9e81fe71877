package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/auth"
	"github.com/example/courtboard/internal/guard"
	"github.com/example/courtboard/internal/persistence"
	"github.com/example/courtboard/internal/persistence/memory"
	"github.com/example/courtboard/internal/persistence/sqlstore"
	"github.com/example/courtboard/internal/queue"
	"github.com/example/courtboard/internal/recurrence"
	"github.com/example/courtboard/internal/testfixtures"
)

const testPasscode = "open-sesame"

var fastParams = auth.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

type fakeHistory struct {
	mu     sync.Mutex
	filter sqlstore.HistoryFilter
	events []queue.SessionArchivedEvent
}

func (f *fakeHistory) ListHistory(_ context.Context, filter sqlstore.HistoryFilter) ([]queue.SessionArchivedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return f.events, nil
}

type apiHarness struct {
	e       *echo.Echo
	repo    *persistence.SnapshotRepository
	bus     *memory.Bus
	clock   *testfixtures.Clock
	history *fakeHistory
	logs    *bytes.Buffer
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(&syncWriter{w: logs}, nil))

	bus := memory.NewBus()
	repo := persistence.NewSnapshotRepository(memory.NewStore(), 12)
	g := guard.New(repo, bus, guard.Options{Now: clock.NowFunc(), Logger: logger})

	alloc := application.NewAllocationService(g, nil, application.DefaultSettings(), clock.NowFunc(), testfixtures.NewIDGenerator("w").NextFunc(), logger)
	engine := recurrence.NewEngine(time.UTC, clock.NowFunc(), nil, logger)
	blocks := application.NewBlockService(g, engine, recurrence.Catalog{}, 12, clock.NowFunc(), logger)

	hash, err := auth.HashPasscode(testPasscode, fastParams)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(hash, "test-secret", time.Hour, clock.NowFunc())

	history := &fakeHistory{}
	e := NewRouter(RouterConfig{
		Board:      NewBoardHandler(alloc, clock.NowFunc(), 75, logger),
		Courts:     NewCourtHandler(alloc, logger),
		Waitlist:   NewWaitlistHandler(alloc, logger),
		Blocks:     NewBlockHandler(blocks, logger),
		History:    NewHistoryHandler(history, logger),
		Auth:       NewAuthHandler(authn, logger),
		Stream:     NewStreamHandler(alloc, bus, logger),
		Admin:      RequireAdmin(authn, logger),
		Middleware: []echo.MiddlewareFunc{RequestLogger(logger)},
		Logger:     logger,
	})

	return &apiHarness{e: e, repo: repo, bus: bus, clock: clock, history: history, logs: logs}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (h *apiHarness) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) seed(t *testing.T, opts ...testfixtures.SnapshotOption) {
	t.Helper()
	_, err := h.repo.SaveSnapshot(context.Background(), testfixtures.NewSnapshot(12, opts...))
	require.NoError(t, err)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAssignAndBoard(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/courts/3/assign", `{"players":[{"name":"Alice"},{"name":"Bob"}]}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var assigned struct {
		Court   int `json:"court"`
		Session struct {
			Players []struct {
				Name string `json:"name"`
			} `json:"players"`
			Duration int `json:"duration"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assigned))
	assert.Equal(t, 3, assigned.Court)
	assert.Equal(t, "Alice", assigned.Session.Players[0].Name)
	assert.Equal(t, 60, assigned.Session.Duration)

	rec = h.do(t, http.MethodGet, "/board", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Availability struct {
			Free     []int `json:"free"`
			Occupied []int `json:"occupied"`
		} `json:"availability"`
		Offerable []int `json:"offerable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, []int{3}, board.Availability.Occupied)
	assert.Len(t, board.Availability.Free, 11)
	assert.NotContains(t, board.Offerable, 3)
}

func TestServiceErrorMapping(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	h.seed(t, testfixtures.WithSessionEndingAt(5, h.clock.In(55), "Alice"))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "duplicate playing", method: http.MethodPost, path: "/courts/1/assign", body: `{"players":[{"name":"alice"}]}`, wantStatus: http.StatusConflict, wantCode: "duplicate-playing"},
		{name: "active session", method: http.MethodPost, path: "/courts/5/assign", body: `{"players":[{"name":"Zed"}]}`, wantStatus: http.StatusConflict, wantCode: "active-session-present"},
		{name: "not occupied", method: http.MethodPost, path: "/courts/2/clear", wantStatus: http.StatusConflict, wantCode: "not-occupied"},
		{name: "court available", method: http.MethodPost, path: "/waitlist", body: `{"players":[{"name":"Eager"}]}`, wantStatus: http.StatusConflict, wantCode: "court-available"},
		{name: "invalid input", method: http.MethodPost, path: "/courts/2/assign", body: `{"players":[]}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid-input"},
		{name: "court out of range", method: http.MethodPost, path: "/courts/13/assign", body: `{"players":[{"name":"Zed"}]}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid-input"},
		{name: "unknown entry", method: http.MethodDelete, path: "/waitlist/missing", wantStatus: http.StatusNotFound, wantCode: "not-found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.body, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.ErrorCode)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestValidationErrorsAreTranslated(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/courts/2/assign", `{"players":[{"name":"Ann"},{"name":" "}]}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Player name is required.", body.Errors["players[1]"])
}

func TestMalformedRequests(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/courts/abc/assign", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errInvalidCourtID.Error(), decodeError(t, rec).Message)

	rec = h.do(t, http.MethodPost, "/courts/1/assign", `{"players":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/courts/offerable?mode=sideways", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, statusMessage(http.StatusNotFound), decodeError(t, rec).Message)
}

func TestWaitlistFlow(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	h.seed(t, testfixtures.WithAllOccupiedUntil(h.clock.In(30)))

	rec := h.do(t, http.MethodPost, "/waitlist", `{"players":[{"name":"Gina"},{"name":"Hal"}]}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var joined struct {
		Entry struct {
			ID string `json:"id"`
		} `json:"entry"`
		Position int `json:"position"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joined))
	assert.Equal(t, "w-1", joined.Entry.ID)
	assert.Equal(t, 1, joined.Position)

	rec = h.do(t, http.MethodGet, "/waitlist", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Waitlist []struct {
			Position         int `json:"position"`
			EstimatedMinutes int `json:"estimatedMinutes"`
		} `json:"waitlist"`
		MustWait bool `json:"mustWait"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Waitlist, 1)
	assert.Equal(t, 30, listed.Waitlist[0].EstimatedMinutes)
	assert.True(t, listed.MustWait)

	rec = h.do(t, http.MethodDelete, "/waitlist/w-1", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPriorityViolationOverHTTP(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	h.seed(t, testfixtures.WithWaitlist("w-a", "Carol"))

	rec := h.do(t, http.MethodPost, "/courts/1/assign", `{"players":[{"name":"Dave"}],"override":true}`, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "priority-violation", decodeError(t, rec).ErrorCode)

	rec = h.do(t, http.MethodPost, "/courts/1/assign", `{"players":[{"name":"Dave"}],"waitlist_entry_id":"w-a"}`, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "priority-violation", decodeError(t, rec).ErrorCode)

	rec = h.do(t, http.MethodPost, "/courts/1/assign", `{"waitlist_entry_id":"w-a"}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestOfferableAndEstimate(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/courts/offerable?mode=lookahead", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var offer offerableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &offer))
	assert.Equal(t, "lookahead", offer.Mode)
	assert.Len(t, offer.Courts, 12)

	now := h.clock.Now()
	later := now.Add(30 * time.Minute)
	body, err := json.Marshal(estimateRequest{
		Now:              &now,
		Positions:        []int{1, 2, 3, 4},
		CurrentFreeCount: 2,
		NextFree:         []time.Time{now, now, later, later},
	})
	require.NoError(t, err)

	rec = h.do(t, http.MethodPost, "/estimate", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var est estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &est))
	assert.Equal(t, []int{0, 0, 30, 30}, est.ETAs)
}

func TestReasonStatus(t *testing.T) {
	t.Parallel()

	tests := map[application.Reason]int{
		application.ReasonPriorityViolation:    http.StatusConflict,
		application.ReasonTargetUnavailable:    http.StatusConflict,
		application.ReasonActiveSessionPresent: http.StatusConflict,
		application.ReasonInvalidInput:         http.StatusUnprocessableEntity,
		application.ReasonNotFound:             http.StatusNotFound,
		application.ReasonWriteRefused:         http.StatusServiceUnavailable,
		application.ReasonStaleSnapshot:        http.StatusServiceUnavailable,
		application.ReasonUnexpected:           http.StatusInternalServerError,
	}
	for reason, want := range tests {
		assert.Equal(t, want, reasonStatus(reason), reason)
	}
}

func TestRequestLoggerAssignsRequestIDs(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)
	h.do(t, http.MethodGet, "/health", "", "")
	h.do(t, http.MethodGet, "/board", "", "")

	var completed []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(h.logs.String()), "\n") {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		if record["msg"] == "request completed" {
			completed = append(completed, record)
		}
	}
	require.Len(t, completed, 2)
	assert.EqualValues(t, 1, completed[0]["request_id"])
	assert.EqualValues(t, 2, completed[1]["request_id"])
	assert.EqualValues(t, http.StatusOK, completed[1]["status"])
	assert.Equal(t, "/board", completed[1]["path"])
}
