package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ForesightX/internal/agent"
	"ForesightX/internal/auth"
	"ForesightX/internal/character"
	"ForesightX/internal/observability/metrics"
	"ForesightX/internal/plugins/movement"
	"ForesightX/internal/storage/ledger"
	"ForesightX/internal/task"
)

func init() { gin.SetMode(gin.TestMode) }

type staticCatalogue struct {
	char    *character.Character
	actions []agent.Action
}

func (c staticCatalogue) Character() *character.Character { return c.char }
func (c staticCatalogue) Actions() []agent.Action         { return c.actions }

type echoExecutor struct{}

func (echoExecutor) Process(ctx context.Context, msg *agent.Memory, cb agent.HandlerCallback) (*agent.Result, error) {
	reply := agent.Content{Text: "echo: " + msg.Content.Text}
	if cb != nil {
		_ = cb(ctx, reply)
	}
	return &agent.Result{MessageID: msg.ID, Action: "NONE", Success: true, Replies: []agent.Content{reply}}, nil
}

type fixture struct {
	server *Server
	store  *task.MemoryStore
	queue  *task.MemoryQueue
	ledger *ledger.FileRepository
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(16)
	repo, err := ledger.NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	char := character.Default()
	char.Settings.Secrets = map[string]string{"MOVEMENT_PRIVATE_KEY": "0xsecret"}
	catalogue := staticCatalogue{char: char, actions: movement.New().Actions()}

	opts = append([]Option{WithLedger(repo)}, opts...)
	server := NewServer(":0", task.NewService(store, queue, 3), catalogue, opts...)
	server.waitInterval = 10 * time.Millisecond
	return &fixture{server: server, store: store, queue: queue, ledger: repo}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSubmitMessageQueuesTask(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/messages", map[string]any{
		"user_id": "u1",
		"text":    "Will Bitcoin hit $100k in 2025?",
		"twitter": map[string]string{"username": "@alice", "tweet_id": "42"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: got %d body %s", rec.Code, rec.Body.String())
	}
	created := decode[task.Task](t, rec)
	if created.Status != task.StatusPending || created.Source != task.SourceTwitter || created.TwitterUsername != "alice" {
		t.Fatalf("unexpected task: %+v", created)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("expected one queued task, got %d", f.queue.Len())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("task detail status: %d", rec.Code)
	}
	if got := decode[task.Task](t, rec); got.ID != created.ID {
		t.Fatalf("unexpected task id: got %q want %q", got.ID, created.ID)
	}
}

func TestSubmitMessageWaitsForResult(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor := task.NewProcessor(echoExecutor{}, f.store, f.queue, f.queue)
	go func() { _ = processor.Start(ctx) }()

	rec := f.do(t, http.MethodPost, "/api/v1/messages?wait=true&timeout=5", map[string]any{
		"user_id": "u1",
		"text":    "gm",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body %s", rec.Code, rec.Body.String())
	}
	done := decode[task.Task](t, rec)
	if done.Status != task.StatusSucceeded || done.Result == nil || done.Result.Reply != "echo: gm" {
		t.Fatalf("unexpected result: %+v", done)
	}
}

func TestSubmitMessageWaitTimeoutReturnsPending(t *testing.T) {
	f := newFixture(t, WithWaitTimeout(50*time.Millisecond))

	rec := f.do(t, http.MethodPost, "/api/v1/messages?wait=true", map[string]any{"user_id": "u1", "text": "gm"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 after wait timeout, got %d", rec.Code)
	}
}

func TestSubmitMessageErrors(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"empty text", map[string]any{"user_id": "u1", "text": "  "}, http.StatusBadRequest, string(task.CodeTaskValidation)},
		{"missing user", map[string]any{"text": "hello"}, http.StatusBadRequest, string(task.CodeTaskValidation)},
		{"malformed", "not-an-object", http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/messages", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d", rec.Code, tc.status)
			}
			body := decode[map[string]errorBody](t, rec)
			if body["error"].Code != tc.code {
				t.Fatalf("code: got %q want %q", body["error"].Code, tc.code)
			}
		})
	}
}

func TestTaskDetailNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/tasks/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTasksAndStats(t *testing.T) {
	f := newFixture(t)
	for _, req := range []map[string]any{
		{"user_id": "u1", "room_id": "r1", "text": "first"},
		{"user_id": "u2", "room_id": "r2", "text": "second"},
		{"user_id": "u1", "room_id": "r1", "text": "third"},
	} {
		if rec := f.do(t, http.MethodPost, "/api/v1/messages", req); rec.Code != http.StatusAccepted {
			t.Fatalf("submit: %d", rec.Code)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/v1/tasks?room=r1&status=pending&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: %d", rec.Code)
	}
	list := decode[struct {
		Tasks []task.Task `json:"tasks"`
		Count int         `json:"count"`
	}](t, rec)
	if list.Count != 2 || len(list.Tasks) != 2 {
		t.Fatalf("expected 2 tasks in r1, got %+v", list)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks/stats", nil)
	stats := decode[task.TaskStats](t, rec)
	if stats.Total != 3 || stats.Pending != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/tasks?status=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/tasks?since=yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", rec.Code)
	}
}

func TestCharacterAndActions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/character", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("character status: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "0xsecret") {
		t.Fatal("character response leaked secrets")
	}
	if char := decode[character.Character](t, rec); char.Name != "ForesightX" {
		t.Fatalf("unexpected character name %q", char.Name)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/actions", nil)
	actions := decode[struct {
		Actions []actionView `json:"actions"`
	}](t, rec)
	names := map[string]bool{}
	for _, a := range actions.Actions {
		names[a.Name] = true
	}
	for _, want := range []string{movement.ActionCallContract, movement.ActionCreatePredictionMarket, movement.ActionTransfer} {
		if !names[want] {
			t.Fatalf("action %s missing from %v", want, names)
		}
	}
}

func TestTransactionsAndMarkets(t *testing.T) {
	f := newFixture(t)
	question := "Will ETH flip BTC"
	records := []*ledger.Record{
		{Action: movement.ActionTransfer, Hash: "0x01", Success: true, CreatedAt: time.Now().Add(-time.Minute)},
		{
			Action: movement.ActionCreatePredictionMarket, Hash: "0x02", Success: true,
			MarketQuestion: question, MarketSlug: movement.Slug(question), Creator: "alice",
			CreatedAt: time.Now(),
		},
	}
	for _, rec := range records {
		if err := f.ledger.Save(context.Background(), rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/v1/transactions?action=transfer_move", nil)
	list := decode[struct {
		Transactions []ledger.Record `json:"transactions"`
	}](t, rec)
	if len(list.Transactions) != 1 || list.Transactions[0].Hash != "0x01" {
		t.Fatalf("unexpected transactions: %+v", list.Transactions)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/transactions/0x02", nil); rec.Code != http.StatusOK {
		t.Fatalf("transaction detail status: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/markets/will_eth_flip_btc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("market status: %d body %s", rec.Code, rec.Body.String())
	}
	market := decode[map[string]any](t, rec)
	if market["market_url"] != "https://prediction-bice.vercel.app/market/will_eth_flip_btc" {
		t.Fatalf("unexpected market url: %v", market["market_url"])
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/markets/unknown", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown market, got %d", rec.Code)
	}
}

func TestMarketSlugWithSlash(t *testing.T) {
	f := newFixture(t)
	question := "Will BTC/USD hit 100k"
	if err := f.ledger.Save(context.Background(), &ledger.Record{
		Action: movement.ActionCreatePredictionMarket, Hash: "0x10", Success: true,
		MarketQuestion: question, MarketSlug: movement.Slug(question),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	for _, path := range []string{
		"/api/v1/markets/will_btc%2Fusd_hit_100k",
		"/api/v1/markets/will_btc/usd_hit_100k",
	} {
		rec := f.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", path, rec.Code, rec.Body.String())
		}
		market := decode[map[string]any](t, rec)
		if market["slug"] != "will_btc/usd_hit_100k" {
			t.Fatalf("%s: unexpected slug %v", path, market["slug"])
		}
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/markets/", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty slug, got %d", rec.Code)
	}
}

func TestTransactionsActionFilterBeforeLimit(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-time.Hour)
	records := []*ledger.Record{
		{Action: movement.ActionCreatePredictionMarket, Hash: "0x20", Success: true, CreatedAt: base},
		{Action: movement.ActionCallContract, Hash: "0x21", CreatedAt: base.Add(time.Minute)},
		{Action: movement.ActionCallContract, Hash: "0x22", CreatedAt: base.Add(2 * time.Minute)},
		{Action: movement.ActionCallContract, Hash: "0x23", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, rec := range records {
		if err := f.ledger.Save(context.Background(), rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	rec := f.do(t, http.MethodGet, "/api/v1/transactions?action=CREATE_PREDICTION_MARKET&limit=2", nil)
	list := decode[struct {
		Transactions []ledger.Record `json:"transactions"`
		Count        int             `json:"count"`
	}](t, rec)
	if list.Count != 1 || list.Transactions[0].Hash != "0x20" {
		t.Fatalf("unexpected transactions: %+v", list)
	}
}

func TestAuthProtectsAPI(t *testing.T) {
	svc, err := auth.NewService(auth.Config{Enabled: true, Secret: "test-secret", Issuer: "foresightx"})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	f := newFixture(t, WithAuth(svc))

	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz should stay public, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/tasks", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, _, err := svc.Issue(&auth.Subject{ID: "bot"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/messages", map[string]any{"text": "gm"}, "Authorization", "Bearer "+token)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d body %s", rec.Code, rec.Body.String())
	}
	if created := decode[task.Task](t, rec); created.UserID != "bot" {
		t.Fatalf("user id should default to token subject, got %q", created.UserID)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, WithMetrics(metrics.New()))
	f.do(t, http.MethodGet, "/healthz", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "foresightx_http_requests_total") {
		t.Fatal("request counter missing from metrics output")
	}
}
