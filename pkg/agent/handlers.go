package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/mscrnt/pwmbench/pkg/sysinfo"
)

// maxRunsLimit caps /runs?limit=
const maxRunsLimit = 500

// RunRequest is the body of POST /run
type RunRequest struct {
	Scenario string                 `json:"scenario"`
	Config   map[string]interface{} `json:"config,omitempty"`
	// NoSave skips recording the run
	NoSave bool `json:"no_save,omitempty"`
}

// RunResponse is the reply to POST /run
type RunResponse struct {
	RunID  int64           `json:"run_id,omitempty"`
	Result scenario.Result `json:"result"`
}

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}

// sysinfoHandler describes the agent host. ?cpu=1 adds a one second CPU
// usage sample; ?full=1 adds disks and network interfaces.
func sysinfoHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	opts := sysinfo.Options{
		Disks:   q.Get("full") == "1",
		Network: q.Get("full") == "1",
	}
	if q.Get("cpu") == "1" {
		opts.CPUSample = time.Second
	}

	writeJSON(w, http.StatusOK, sysinfo.Collect(opts))
}

// scenariosHandler lists the registered scenarios
func scenariosHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, scenario.Infos())
}

// runHandler executes a scenario on a fresh bench and records it
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, "scenario is required")
		return
	}

	sc, err := scenario.Get(req.Scenario)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	result, err := scenario.Execute(r.Context(), req.Scenario, s.bench, req.Config, s.logger)
	if err != nil && result.EndTime.IsZero() {
		// rejected before the bench was built
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	resp := RunResponse{Result: result}
	if s.store != nil && !req.NoSave {
		run, err := s.store.RecordScenario(req.Scenario, db.JSONData(req.Config), s.bench, result, db.Units(sc))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to record run: %v", err)
			return
		}
		resp.RunID = run.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// runsHandler lists recorded runs, newest first
func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "no run store configured")
		return
	}

	filter := db.RunFilter{
		Scenario: r.URL.Query().Get("scenario"),
		Limit:    20,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: %q", v)
			return
		}
		if n > maxRunsLimit {
			n = maxRunsLimit
		}
		filter.Limit = n
	}

	runs, err := s.store.ListRuns(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
