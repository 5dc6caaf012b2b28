package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/chess"
	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/engine"
	"github.com/gambitlabs/insights/internal/scheduler"
	"github.com/gambitlabs/insights/internal/store"
)

type stubJobs struct {
	submitted analyzer.GameInput
	cfg       analyzer.EngineConfig
	submitErr error
	statusErr error
	cancelErr error
	cancelled string
}

func (s *stubJobs) Submit(in analyzer.GameInput, cfg analyzer.EngineConfig) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submitted = in
	s.cfg = cfg
	return "job-1", nil
}

func (s *stubJobs) Status(id string) (scheduler.Status, error) {
	if s.statusErr != nil {
		return scheduler.Status{}, s.statusErr
	}
	return scheduler.Status{State: scheduler.StateRunning, PliesCompleted: 3, TotalPlies: 10}, nil
}

func (s *stubJobs) Cancel(id string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = id
	return nil
}

type stubResults struct {
	ga  *analyzer.GameAnalysis
	err error
	key string
}

func (s *stubResults) GetGameAnalysis(_ context.Context, platform, gameID, configKey string) (*analyzer.GameAnalysis, error) {
	s.key = configKey
	if s.err != nil {
		return nil, s.err
	}
	return s.ga, nil
}

func testRouter(jobs *stubJobs, results *stubResults) http.Handler {
	return NewRouter(zerolog.Nop(), jobs, results,
		analyzer.EngineConfig{Depth: 12, MoveTimeMS: 100, Skill: 20, MultiPV: 2})
}

func TestSubmitAccepted(t *testing.T) {
	jobs := &stubJobs{}
	router := testRouter(jobs, &stubResults{})

	body := `{"game_id":"g1","platform":"lichess","rating":1850,"moves":["e4","e5"],"config":{"depth":18}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analysis", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	var resp SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID != "job-1" {
		t.Errorf("job_id: got %q", resp.JobID)
	}
	// Depth overridden, the rest defaulted.
	if jobs.cfg.Depth != 18 || jobs.cfg.MoveTimeMS != 100 {
		t.Errorf("config: got %+v", jobs.cfg)
	}
	if jobs.submitted.Rating != 1850 {
		t.Errorf("rating: got %d", jobs.submitted.Rating)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestSubmitRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"missing game id", `{"platform":"lichess","moves":["e4"]}`, nil, http.StatusBadRequest},
		{"no moves", `{"game_id":"g1","platform":"lichess"}`, nil, http.StatusBadRequest},
		{"illegal game", `{"game_id":"g1","platform":"lichess","moves":["Ke2"]}`,
			fmt.Errorf("validate: %w", chess.ErrIllegalMove), http.StatusBadRequest},
		{"queue full", `{"game_id":"g1","platform":"lichess","moves":["e4"]}`,
			scheduler.ErrBusy, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := testRouter(&stubJobs{submitErr: tc.err}, &stubResults{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analysis", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestJobStatus(t *testing.T) {
	router := testRouter(&stubJobs{}, &stubResults{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analysis/jobs/job-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var st scheduler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != scheduler.StateRunning || st.PliesCompleted != 3 {
		t.Errorf("got %+v", st)
	}
}

func TestJobNotFound(t *testing.T) {
	router := testRouter(&stubJobs{statusErr: scheduler.ErrJobNotFound, cancelErr: scheduler.ErrJobNotFound}, &stubResults{})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/v1/analysis/jobs/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", method, rec.Code)
		}
	}
}

func TestJobCancel(t *testing.T) {
	jobs := &stubJobs{}
	router := testRouter(jobs, &stubResults{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/analysis/jobs/job-1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rec.Code)
	}
	if jobs.cancelled != "job-1" {
		t.Errorf("cancelled: got %q", jobs.cancelled)
	}
}

func TestResult(t *testing.T) {
	results := &stubResults{ga: &analyzer.GameAnalysis{
		GameID:        "g1",
		Platform:      "lichess",
		Config:        analyzer.EngineConfig{Depth: 12, MoveTimeMS: 100, Skill: 20, MultiPV: 2},
		TotalPlies:    1,
		AnalyzedPlies: 1,
		TierCounts:    map[classify.Tier]int{classify.TierBest: 1},
		Moves: []analyzer.MoveRecord{{
			Ply: 1, SAN: "e4", UCI: "e2e4", WhiteMoved: true, Analyzed: true,
			Before: &engine.Evaluation{Score: 30}, After: &engine.Evaluation{Score: -25},
			BestMove: "e2e4", Tier: classify.TierBest, Accuracy: 100,
		}},
		CreatedAt: time.Now().UTC(),
	}}
	router := testRouter(&stubJobs{}, results)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analysis/result?platform=lichess&game_id=g1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	// Config omitted from the query falls back to the server default.
	if results.key != "d12-t100-s20-pv2" {
		t.Errorf("config key: got %q", results.key)
	}

	var resp AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.GameID != "g1" || resp.TierCounts["best"] != 1 {
		t.Errorf("got %+v", resp)
	}
	if len(resp.Moves) != 1 || resp.Moves[0].EvalCP == nil || *resp.Moves[0].EvalCP != 25 {
		t.Errorf("moves: got %+v", resp.Moves)
	}
}

func TestResultNotFound(t *testing.T) {
	router := testRouter(&stubJobs{}, &stubResults{err: store.ErrNotFound})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analysis/result?platform=lichess&game_id=nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestResultMissingParams(t *testing.T) {
	router := testRouter(&stubJobs{}, &stubResults{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analysis/result", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestAccessLogForwardsFlush(t *testing.T) {
	handler := AccessLog(zerolog.Nop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer lost http.Flusher")
		}
		fmt.Fprint(w, "chunk")
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analysis/jobs/j1", nil))
	if !rec.Flushed {
		t.Error("flush did not reach the underlying writer")
	}
}

func TestCORSPreflight(t *testing.T) {
	router := testRouter(&stubJobs{}, &stubResults{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/analysis", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
