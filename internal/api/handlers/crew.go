package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/api"
	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/logger"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
	"github.com/cloo-solutions/tenantpal/internal/telemetry"
)

const (
	msgMissingInputs = "Missing required input fields."
	msgRunFailed     = "Failed to run analysis."
	msgParseFailed   = "Failed to parse analysis result."
)

// CrewRunner executes the configured crew against one set of inputs.
type CrewRunner interface {
	Run(ctx context.Context, inputs map[string]any) (*pipeline.Run, error)
	RequiredInputs() []string
}

type CrewHandler struct {
	runner CrewRunner
}

func NewCrewHandler(runner CrewRunner) *CrewHandler {
	return &CrewHandler{runner: runner}
}

type runFailure struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RawOutput string `json:"rawOutput,omitempty"`
}

// RunCrew answers with the terminal report exactly as the crew produced it.
func (h *CrewHandler) RunCrew(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var inputs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, key := range h.runner.RequiredInputs() {
		if _, ok := inputs[key].(string); !ok {
			api.Error(w, http.StatusBadRequest, msgMissingInputs)
			return
		}
	}

	run, err := h.runner.Run(r.Context(), inputs)
	if err != nil {
		if errors.Is(err, domain.ErrMissingRunInput) {
			api.Error(w, http.StatusBadRequest, msgMissingInputs)
			return
		}
		log.Error("crew run failed", zap.Error(err))
		telemetry.CaptureError(r.Context(), err)
		api.ErrorWithDetails(w, runFailureStatus(err), msgRunFailed, err.Error())
		return
	}

	out := strings.TrimSpace(run.Output())
	if !json.Valid([]byte(out)) {
		log.Error("crew output is not JSON", zap.String("run_id", run.ID.String()))
		api.JSON(w, http.StatusInternalServerError, runFailure{
			Error:     msgParseFailed,
			Details:   "terminal output is not a JSON document",
			RawOutput: run.Output(),
		})
		return
	}

	w.Header().Set("X-Run-ID", run.ID.String())
	api.RawJSON(w, http.StatusOK, []byte(out))
}

// runFailureStatus is 502 when the model or index upstream failed and 500
// otherwise. Input problems are answered before the run starts, so a
// configuration error here is a crew misconfiguration, not a bad request.
func runFailureStatus(err error) int {
	if status := api.DomainErrorToHTTP(err); status >= http.StatusInternalServerError {
		return status
	}
	return http.StatusInternalServerError
}
