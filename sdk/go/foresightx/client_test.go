package foresightx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitMessageSendsTokenAndWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/messages" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Fatalf("expected wait=true, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Task{
			ID:     "task-1",
			Text:   msg.Text,
			Status: "succeeded",
			Result: &Result{Reply: "done", Action: "CREATE_PREDICTION_MARKET", Handled: true, Success: true},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("token")

	task, err := client.SubmitMessage(context.Background(), Message{UserID: "u1", Text: "Will it rain?"}, true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !task.Done() || task.Result.Reply != "done" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestSubmitMessageRequiresText(t *testing.T) {
	client, err := NewClient("http://localhost:8080", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SubmitMessage(context.Background(), Message{}, false); err == nil {
		t.Fatal("expected an error for empty text")
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost", nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestGetTaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/tasks/task-404" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(struct {
				Error APIError `json:"error"`
			}{Error: APIError{Code: "TASK_NOT_FOUND", Message: "missing"}})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	_, err := client.GetTask(context.Background(), "task-404")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "TASK_NOT_FOUND" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestUnauthorizedStringError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	_, err := client.ListTasks(context.Background(), ListParams{Status: "pending"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Unauthorized" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListTasksAndMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tasks":
			if r.URL.Query().Get("room") != "r1" || r.URL.Query().Get("limit") != "5" {
				t.Fatalf("unexpected query: %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"tasks":[{"id":"a","status":"pending"}],"count":1}`))
		case "/api/v1/markets/will_it_rain":
			_, _ = w.Write([]byte(`{"slug":"will_it_rain","market_url":"https://prediction-bice.vercel.app/market/will_it_rain"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	tasks, err := client.ListTasks(context.Background(), ListParams{RoomID: "r1", Limit: 5})
	if err != nil || len(tasks) != 1 || tasks[0].ID != "a" {
		t.Fatalf("list tasks: %v %+v", err, tasks)
	}
	market, err := client.Market(context.Background(), "will_it_rain")
	if err != nil || market.Slug != "will_it_rain" {
		t.Fatalf("market: %v %+v", err, market)
	}
}

func TestMarketSlugIsEscapedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/markets/will_btc/usd_hit_100k?" {
			t.Errorf("unexpected path %q (raw %q)", r.URL.Path, r.URL.RawPath)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"slug":"will_btc/usd_hit_100k?"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	market, err := client.Market(context.Background(), "will_btc/usd_hit_100k?")
	if err != nil || market.Slug != "will_btc/usd_hit_100k?" {
		t.Fatalf("market: %v %+v", err, market)
	}
}
