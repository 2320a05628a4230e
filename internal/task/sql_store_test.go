package task

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/storage/sqldb"
)

var taskColumnNames = []string{
	"id", "user_id", "user_name", "room_id", "message_text", "requested_action", "source", "twitter_username", "tweet_id",
	"metadata", "status", "attempts", "max_retries", "last_error", "error_code", "result", "created_at", "updated_at",
}

func newMockStore(t *testing.T, dialect sqldb.Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return NewSQLStore(sqldb.Wrap(raw, dialect)), mock
}

func TestSQLStoreCreate(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectMySQL)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO message_tasks")).
		WithArgs("t-1", "alice", "Alice", "room", "hi", "TRANSFER_MOVE", "twitter", "alice", "42",
			`{"k":"v"}`, "pending", 0, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Create(context.Background(), &Task{
		ID: "t-1", UserID: "alice", UserName: "Alice", RoomID: "room", Text: "hi", Action: "TRANSFER_MOVE",
		Source: "twitter", TwitterUsername: "alice", TweetID: "42", Metadata: map[string]any{"k": "v"},
		Status: StatusPending, MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreGetDecodesResult(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta("FROM message_tasks WHERE id = $1")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
			"t-1", "alice", "", "room", "will btc hit 100k", "", "direct", "", "",
			nil, "succeeded", 1, 3, nil, "",
			`{"reply":"created","action":"CREATE_PREDICTION_MARKET","handled":true,"success":true,"content":{"slug":"will_btc_hit_100k"}}`,
			int64(100), int64(200),
		))

	task, err := store.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != StatusSucceeded || task.Result == nil || task.Result.Action != "CREATE_PREDICTION_MARKET" {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Result.Content["slug"] != "will_btc_hit_100k" || task.Metadata != nil || task.LastError != "" {
		t.Fatalf("unexpected decoded fields %+v", task)
	}
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectSQLite)
	mock.ExpectQuery("FROM message_tasks WHERE id").WillReturnRows(sqlmock.NewRows(taskColumnNames))

	if _, err := store.Get(context.Background(), "nope"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLStoreClaimExhausted(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectMySQL)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE message_tasks SET status = ?, attempts = attempts + 1")).
		WithArgs("running", sqlmock.AnyArg(), "t-1", "pending", "failed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM message_tasks WHERE id").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
			"t-1", "u", "", "u", "hi", "", "direct", "", "",
			nil, "failed", 3, 3, "boom", "MODEL_FAILURE", nil, int64(1), int64(2),
		))

	task, err := store.Claim(context.Background(), "t-1")
	if !IsTaskError(err, CodeTaskExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if task == nil || task.LastError != "boom" {
		t.Fatalf("expected current task state, got %+v", task)
	}
}

func TestSQLStoreMarkFailedTerminal(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectMySQL)

	mock.ExpectExec(regexp.QuoteMeta("attempts = max_retries")).
		WithArgs("failed", "bad input", string(xerrors.CodeInvalidArgument), sqlmock.AnyArg(), "t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.MarkFailed(context.Background(), "t-1", xerrors.CodeInvalidArgument, "bad input", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	mock.ExpectExec("UPDATE message_tasks SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.MarkSucceeded(context.Background(), "missing", ExecutionResult{Reply: "x"}); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreListBuildsFilters(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectPostgres)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ($1) AND room_id = $2 AND result_action = $3 ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT $4 OFFSET $5")).
		WithArgs("succeeded", "lobby", "TRANSFER_MOVE", 5, 0).
		WillReturnRows(sqlmock.NewRows(taskColumnNames))

	opts := buildListOptions([]ListOption{WithStatuses(StatusSucceeded), WithRoom("lobby"), WithAction("transfer_move"), WithLimit(5)})
	tasks, err := store.List(context.Background(), opts)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStoreStatsAggregatesGroups(t *testing.T) {
	store, mock := newMockStore(t, sqldb.DialectSQLite)

	mock.ExpectQuery("GROUP BY status, result_action").
		WillReturnRows(sqlmock.NewRows([]string{"status", "result_action", "count", "oldest", "newest"}).
			AddRow("succeeded", "TRANSFER_MOVE", 2, int64(10), int64(50)).
			AddRow("succeeded", "NONE", 1, int64(20), int64(30)).
			AddRow("pending", "", 3, int64(5), int64(60)))

	stats, err := store.Stats(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 6 || stats.Succeeded != 3 || stats.Pending != 3 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.Actions["TRANSFER_MOVE"] != 2 || stats.Actions["NONE"] != 1 {
		t.Fatalf("unexpected action breakdown %+v", stats.Actions)
	}
	if stats.OldestUpdatedAt != 5 || stats.NewestUpdatedAt != 60 {
		t.Fatalf("unexpected time range %+v", stats)
	}
}
