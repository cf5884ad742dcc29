package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/avolkova/mathquiz/internal/engine"
	"github.com/avolkova/mathquiz/internal/identity"
	"github.com/avolkova/mathquiz/internal/llm"
	"github.com/avolkova/mathquiz/internal/model"
	"github.com/avolkova/mathquiz/internal/store"
)

// scriptedGen returns the same canned response on every call.
type scriptedGen struct {
	response string
	err      error
}

func (g *scriptedGen) Generate(ctx context.Context, prompt string) (string, error) {
	return g.response, g.err
}

func questionSet(n int) string {
	type q struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correct_answer"`
		Explanation   string   `json:"explanation"`
	}
	qs := make([]q, 0, n)
	for i := 0; i < n; i++ {
		opts := []string{
			strconv.Itoa(4 * i),
			strconv.Itoa(4*i + 1),
			strconv.Itoa(4*i + 2),
			strconv.Itoa(4*i + 3),
		}
		qs = append(qs, q{
			Question:      fmt.Sprintf("What is %d + %d?", 2*i, 2*i),
			Options:       opts,
			CorrectAnswer: opts[0],
			Explanation:   "Add the two numbers.",
		})
	}
	b, err := json.Marshal(qs)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func newTestServer(t *testing.T, gen engine.Generator) *httptest.Server {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := engine.New(s, gen, engine.Config{
		Topic:         "algebra",
		Difficulty:    model.DifficultyMixed,
		QuestionCount: 3,
	})
	h := New(e, identity.NewHeaderProvider(""))

	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, user, body string) *http.Response {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(identity.DefaultHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func startSession(t *testing.T, srv *httptest.Server, user string) sessionView {
	t.Helper()
	resp := doRequest(t, http.MethodPost, srv.URL+"/test/start", user, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d", resp.StatusCode)
	}
	var view sessionView
	decode(t, resp, &view)
	return view
}

func TestMissingIdentityRejected(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: questionSet(3)})

	for _, path := range []string{"/test/start", "/history"} {
		resp := doRequest(t, http.MethodGet, srv.URL+path, "", "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestStartTestRedactsAnswers(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: questionSet(3)})

	resp := doRequest(t, http.MethodPost, srv.URL+"/test/start", "alice", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var buf strings.Builder
	var view sessionView
	body := json.NewDecoder(io.TeeReader(resp.Body, &buf))
	if err := body.Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if view.SessionID == "" {
		t.Error("expected a session id")
	}
	if view.Status != string(model.StatusIssued) {
		t.Errorf("expected status issued, got %q", view.Status)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(view.Questions))
	}
	for _, q := range view.Questions {
		if len(q.Options) != model.NumOptions {
			t.Errorf("%s: expected %d options, got %d", q.ID, model.NumOptions, len(q.Options))
		}
	}

	raw := buf.String()
	if strings.Contains(raw, "correct_answer") || strings.Contains(raw, "explanation") {
		t.Errorf("response leaks grading data: %s", raw)
	}
}

func TestGetTest(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: questionSet(3)})
	view := startSession(t, srv, "alice")

	resp := doRequest(t, http.MethodGet, srv.URL+"/test/"+view.SessionID, "alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got sessionView
	decode(t, resp, &got)
	if got.SessionID != view.SessionID {
		t.Errorf("expected session %q, got %q", view.SessionID, got.SessionID)
	}

	// Another user cannot see it.
	resp = doRequest(t, http.MethodGet, srv.URL+"/test/"+view.SessionID, "mallory", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign owner: expected 404, got %d", resp.StatusCode)
	}
}

func TestSubmitTest(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: questionSet(3)})
	view := startSession(t, srv, "alice")

	// The first option generated for each question is the correct one.
	answers := map[string]string{}
	for _, q := range view.Questions {
		answers[q.ID] = q.Options[0]
	}
	body, _ := json.Marshal(map[string]any{"answers": answers})

	resp := doRequest(t, http.MethodPost, srv.URL+"/test/"+view.SessionID+"/submit", "alice", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec model.TestRecord
	decode(t, resp, &rec)
	if rec.Score != 3 || rec.Total != 3 {
		t.Errorf("expected 3/3, got %d/%d", rec.Score, rec.Total)
	}
	if rec.Percentage != 100.0 {
		t.Errorf("expected 100.0, got %v", rec.Percentage)
	}
	if len(rec.Feedback) != 3 {
		t.Errorf("expected 3 feedback items, got %d", len(rec.Feedback))
	}

	// A second submission conflicts.
	resp = doRequest(t, http.MethodPost, srv.URL+"/test/"+view.SessionID+"/submit", "alice", string(body))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resubmit: expected 409, got %d", resp.StatusCode)
	}
}

func TestSubmitTestErrors(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: questionSet(3)})
	view := startSession(t, srv, "alice")

	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"unknown session", srv.URL + "/test/nope/submit", `{"answers": {}}`, http.StatusNotFound},
		{"unknown question id", srv.URL + "/test/" + view.SessionID + "/submit", `{"answers": {"q99": "x"}}`, http.StatusBadRequest},
		{"malformed body", srv.URL + "/test/" + view.SessionID + "/submit", `{"answers": `, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, tt.url, "alice", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestStartTestGenerationUnavailable(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{err: fmt.Errorf("%w: connection refused", llm.ErrUnavailable)})

	resp := doRequest(t, http.MethodPost, srv.URL+"/test/start", "alice", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestStartTestGenerationInvalid(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: "not json at all"})

	resp := doRequest(t, http.MethodPost, srv.URL+"/test/start", "alice", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	srv := newTestServer(t, &scriptedGen{response: questionSet(3)})

	// Empty history is an empty list, not null.
	resp := doRequest(t, http.MethodGet, srv.URL+"/history", "alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var records []model.TestRecord
	decode(t, resp, &records)
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty list, got %#v", records)
	}

	view := startSession(t, srv, "alice")
	body := `{"answers": {}}`
	if resp := doRequest(t, http.MethodPost, srv.URL+"/test/"+view.SessionID+"/submit", "alice", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/history", "alice", "")
	decode(t, resp, &records)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TestID != view.SessionID {
		t.Errorf("expected record for %q, got %q", view.SessionID, records[0].TestID)
	}

	// History is per-owner.
	resp = doRequest(t, http.MethodGet, srv.URL+"/history", "bob", "")
	decode(t, resp, &records)
	if len(records) != 0 {
		t.Errorf("bob should have no records, got %d", len(records))
	}
}
