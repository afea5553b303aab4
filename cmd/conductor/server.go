package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conductor/pkg/actions"
	"conductor/pkg/logx"
	"conductor/pkg/version"
)

// actionServer exposes the action surface over HTTP: POST /actions/<NAME>
// with a JSON body, plus /healthz and /metrics.
type actionServer struct {
	dispatcher *actions.Dispatcher
	logger     *logx.Logger
}

func newActionServer(dispatcher *actions.Dispatcher) *actionServer {
	return &actionServer{
		dispatcher: dispatcher,
		logger:     logx.NewLogger("http"),
	}
}

func (s *actionServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/actions/", s.handleAction)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type envelope struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

func (s *actionServer) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/actions/")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), name, body)
	if err != nil {
		code := actions.Code(err)
		s.writeJSON(w, statusFor(code), envelope{
			Error: &errorBody{
				Code:      code,
				Message:   err.Error(),
				Retryable: actions.IsRetryable(err),
			},
		})
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{OK: true, Result: result})
}

func (s *actionServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *actionServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response: %v", err)
	}
}

func statusFor(code string) int {
	switch code {
	case actions.CodeSessionNotFound:
		return http.StatusNotFound
	case actions.CodeWorkdirInvalid, actions.CodeAdapterNotInstalled,
		actions.CodeBranchNotFound, actions.CodeNothingToCommit:
		return http.StatusBadRequest
	case actions.CodeRepoUnreachable, actions.CodePushRejected, actions.CodePRCreationFailed:
		return http.StatusBadGateway
	case actions.CodeFinalizeInFlight:
		return http.StatusConflict
	case actions.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case actions.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
