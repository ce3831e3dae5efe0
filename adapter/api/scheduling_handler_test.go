package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/application/commands"
	"github.com/slotlinehq/slotline/internal/scheduling/application/queries"
	"github.com/slotlinehq/slotline/internal/scheduling/application/services"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/slotlinehq/slotline/internal/scheduling/infrastructure/persistence"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/migrations"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// testEnv wires the full SQLite stack behind the HTTP router.
type testEnv struct {
	handler    http.Handler
	threadRepo *persistence.SQLiteThreadRepository
	db         *sql.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	threadRepo := persistence.NewSQLiteThreadRepository(sqlDB)
	openSlotsRepo := persistence.NewSQLiteOpenSlotsRepository(sqlDB)
	failureRepo := persistence.NewSQLiteFailureRepository(sqlDB)
	outboxRepo := outbox.NewSQLiteRepository(sqlDB)
	auditRepo := audit.NewSQLiteRepository(sqlDB)
	uow := sharedPersistence.NewSQLiteUnitOfWork(sqlDB)
	generator := services.NewBusinessHoursGenerator(services.DefaultGeneratorConfig())

	config := commands.RequestAlternateConfig{
		MaxAdditionalProposals: 2,
		OpenSlotsTTL:           168 * time.Hour,
		PublicBaseURL:          "https://slotline.test",
	}

	handler := NewSchedulingHandler(SchedulingHandlerConfig{
		RequestAlternate: commands.NewRequestAlternateHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, generator, uow, config),
		SelectSlot:       commands.NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow),
		RecordFailure:    commands.NewRecordFailureHandler(threadRepo, failureRepo, auditRepo, uow),
		ResetFailures:    commands.NewResetFailuresHandler(failureRepo, auditRepo, uow),
		FailureSummary:   queries.NewGetFailureSummaryHandler(threadRepo, failureRepo),
		WorkspaceStats:   queries.NewGetWorkspaceFailureStatsHandler(failureRepo),
		OpenSlots:        queries.NewGetOpenSlotsHandler(openSlotsRepo),
		AuditRepo:        auditRepo,
		Logger:           logger,
	})
	server := NewServer(DefaultServerConfig(), handler, logger)

	return &testEnv{handler: server.Handler(), threadRepo: threadRepo, db: sqlDB}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createThread(t *testing.T, token string, reproposals int) *domain.Thread {
	t.Helper()

	thread, err := domain.NewThread(uuid.New(), uuid.New(), "Kickoff", []string{"a@example.com"}, token)
	require.NoError(t, err)
	for i := 0; i < reproposals; i++ {
		require.NoError(t, thread.RecordReproposal())
	}
	require.NoError(t, e.threadRepo.Save(context.Background(), thread))
	return thread
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

var alternateBody = map[string]any{
	"comment":     "mornings are better",
	"range_start": "2026-09-07T00:00:00Z",
	"range_end":   "2026-09-11T00:00:00Z",
	"prefer":      "morning",
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestRequestAlternate(t *testing.T) {
	t.Run("re-proposes under the cap", func(t *testing.T) {
		env := newTestEnv(t)
		env.createThread(t, "invite-fresh", 0)

		rec := env.do(t, http.MethodPost, "/i/invite-fresh/request-alternate", alternateBody)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[requestAlternateResponse](t, rec)
		assert.Equal(t, 2, resp.ProposalVersion)
		assert.Equal(t, 1, resp.AdditionalProposeCount)
		assert.False(t, resp.MaxReached)
		assert.NotEmpty(t, resp.Slots)
	})

	t.Run("escalates at the cap", func(t *testing.T) {
		env := newTestEnv(t)
		env.createThread(t, "invite-capped", 2)

		rec := env.do(t, http.MethodPost, "/i/invite-capped/request-alternate", alternateBody)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[requestAlternateResponse](t, rec)
		assert.True(t, resp.MaxReached)
		assert.True(t, resp.AutoOpenSlots)
		assert.Contains(t, resp.OpenSlotsURL, "https://slotline.test/open/")
		// Counters stop at the cap.
		assert.Equal(t, 2, resp.AdditionalProposeCount)
	})

	t.Run("weekend-only range is a 400", func(t *testing.T) {
		env := newTestEnv(t)
		env.createThread(t, "invite-weekend", 0)

		// Saturday through Sunday, with weekends skipped no slot fits.
		rec := env.do(t, http.MethodPost, "/i/invite-weekend/request-alternate", map[string]any{
			"range_start": "2026-09-05T00:00:00Z",
			"range_end":   "2026-09-06T23:00:00Z",
			"prefer":      "morning",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "bad_request", body["error"])
	})

	t.Run("weekend-only range still escalates at the cap", func(t *testing.T) {
		env := newTestEnv(t)
		env.createThread(t, "invite-weekend-cap", 2)

		rec := env.do(t, http.MethodPost, "/i/invite-weekend-cap/request-alternate", map[string]any{
			"range_start": "2026-09-05T00:00:00Z",
			"range_end":   "2026-09-06T23:00:00Z",
			"prefer":      "morning",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[requestAlternateResponse](t, rec)
		assert.True(t, resp.MaxReached)
		assert.Contains(t, resp.OpenSlotsURL, "https://slotline.test/open/")
	})

	t.Run("missing prefer is a 400", func(t *testing.T) {
		env := newTestEnv(t)
		env.createThread(t, "invite-noprefer", 0)

		rec := env.do(t, http.MethodPost, "/i/invite-noprefer/request-alternate", map[string]any{
			"range_start": "2026-09-07T00:00:00Z",
			"range_end":   "2026-09-11T00:00:00Z",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown token is a generic 404", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/i/nope/request-alternate", alternateBody)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "not_found", body["error"])
	})
}

func TestOpenSlotsFlow(t *testing.T) {
	env := newTestEnv(t)
	env.createThread(t, "invite-flow", 2)

	// Escalate to get a public page.
	rec := env.do(t, http.MethodPost, "/i/invite-flow/request-alternate", alternateBody)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[requestAlternateResponse](t, rec)
	pageToken := strings.TrimPrefix(resp.OpenSlotsURL, "https://slotline.test/open/")
	require.NotEmpty(t, pageToken)

	t.Run("page is publicly readable without claimant identities", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/open/"+pageToken, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		page := decodeBody[queries.OpenSlotsPageDTO](t, rec)
		assert.Equal(t, pageToken, page.Token)
		require.NotEmpty(t, page.Slots)
		assert.False(t, page.Slots[0].Claimed)
	})

	t.Run("claiming a slot finalizes the thread", func(t *testing.T) {
		page := decodeBody[queries.OpenSlotsPageDTO](t, env.do(t, http.MethodGet, "/open/"+pageToken, nil))
		slotID := page.Slots[0].ID

		rec := env.do(t, http.MethodPost, "/open/"+pageToken+"/select", map[string]any{
			"slot_id": slotID,
			"name":    "Ada",
			"email":   "ada@example.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		result := decodeBody[selectSlotResponse](t, rec)
		assert.False(t, result.Start.IsZero())

		// Second claimant on the same slot loses.
		rec = env.do(t, http.MethodPost, "/open/"+pageToken+"/select", map[string]any{
			"slot_id": slotID,
			"name":    "Bob",
			"email":   "bob@example.com",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "slot_already_selected", body["error"])

		// The finalized thread no longer accepts alternate requests.
		rec = env.do(t, http.MethodPost, "/i/invite-flow/request-alternate", alternateBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing claimant name is a 400", func(t *testing.T) {
		page := decodeBody[queries.OpenSlotsPageDTO](t, env.do(t, http.MethodGet, "/open/"+pageToken, nil))

		rec := env.do(t, http.MethodPost, "/open/"+pageToken+"/select", map[string]any{
			"slot_id": page.Slots[1].ID,
			"email":   "ada@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown page token is a generic 404", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/open/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFailureEndpoints(t *testing.T) {
	env := newTestEnv(t)
	thread := env.createThread(t, "invite-failures", 0)
	threadID := thread.ID().String()
	workspaceID := thread.WorkspaceID()

	t.Run("records and summarizes failures", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/failures", map[string]any{
			"workspace_id":    workspaceID,
			"participant_key": "bob@example.com",
			"failure_type":    "proposal_rejected",
			"failure_stage":   "propose",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = env.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/failures", map[string]any{
			"workspace_id":  workspaceID,
			"failure_type":  "no_common_slot",
			"failure_stage": "propose",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/v1/threads/"+threadID+"/failures", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decodeBody[queries.FailureSummaryDTO](t, rec)
		assert.Equal(t, 2, summary.TotalFailures)
		assert.Equal(t, 2, summary.UniqueFailureTypes)
		assert.Equal(t, 2, summary.EscalationLevel)
	})

	t.Run("invalid failure type is a 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/failures", map[string]any{
			"workspace_id":  workspaceID,
			"failure_type":  "bogus",
			"failure_stage": "propose",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("workspace stats aggregate across threads", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/workspaces/"+workspaceID.String()+"/failure-stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		stats := decodeBody[queries.WorkspaceFailureStatsDTO](t, rec)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.ThreadsWithFailures)
	})

	t.Run("reset narrows by type", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete,
			"/api/v1/threads/"+threadID+"/failures?workspace_id="+workspaceID.String()+"&type=no_common_slot", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[resetFailuresResponse](t, rec)
		assert.Equal(t, int64(1), resp.Deleted)
	})

	t.Run("audit log records the mutations", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads/"+threadID+"/audit", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decodeBody[[]auditEntryDTO](t, rec)
		require.NotEmpty(t, entries)

		actions := make([]string, 0, len(entries))
		for _, e := range entries {
			actions = append(actions, e.Action)
		}
		assert.Contains(t, actions, "failure.recorded")
		assert.Contains(t, actions, "failures.reset")
	})

	t.Run("malformed thread id is a 400", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads/not-a-uuid/failures", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
