package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/skeinhq/skein/internal/classify"
	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/internal/rules"
	"github.com/skeinhq/skein/internal/validation"
	"github.com/skeinhq/skein/pkg/models"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err.Error())
		return false
	}
	return true
}

func requireTasks(w http.ResponseWriter, r *http.Request, tasks []*models.Task) bool {
	if len(tasks) == 0 {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "tasks must not be empty", nil)
		return false
	}
	return true
}

// requireKnownPhases rejects task sets whose declared phases are outside the
// canonical set. Validation endpoints skip this so the validator can report
// invalid_phase findings instead.
func requireKnownPhases(w http.ResponseWriter, r *http.Request, tasks []*models.Task) bool {
	for _, t := range tasks {
		if t.Phase != "" && !t.Phase.Valid() {
			writeError(w, r, http.StatusBadRequest, CodeInvalidTaskType,
				fmt.Sprintf("task %s has unknown task type %q", t.ID, t.Phase), nil)
			return false
		}
	}
	return true
}

type identifyRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Labels      []string               `json:"labels"`
	Context     *models.ProjectContext `json:"context"`
}

type identifyResponse struct {
	TaskType            models.Phase           `json:"task_type"`
	Confidence          float64                `json:"confidence"`
	Reasoning           string                 `json:"reasoning"`
	AlternativeTypes    []classify.Alternative `json:"alternative_types"`
	PhaseOrder          int                    `json:"phase_order"`
	TypicalDependencies []models.Phase         `json:"typical_dependencies"`
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" && req.Description == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "name or description is required", nil)
		return
	}

	cls := s.engine.Identify(&models.Task{
		Name:        req.Name,
		Description: req.Description,
		Labels:      req.Labels,
	}, req.Context)

	writeJSON(w, http.StatusOK, identifyResponse{
		TaskType:            cls.Phase,
		Confidence:          cls.Confidence,
		Reasoning:           cls.Reason,
		AlternativeTypes:    cls.Alternatives,
		PhaseOrder:          cls.Phase.Order(),
		TypicalDependencies: classify.TypicalDependencies(cls.Phase),
	})
}

type identifyBatchRequest struct {
	Tasks          []*models.Task         `json:"tasks"`
	ProjectContext *models.ProjectContext `json:"project_context"`
}

func (s *Server) handleIdentifyBatch(w http.ResponseWriter, r *http.Request) {
	var req identifyBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireTasks(w, r, req.Tasks) {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.IdentifyBatch(req.Tasks, req.ProjectContext))
}

type validateRequest struct {
	ProjectID      string         `json:"project_id"`
	Tasks          []*models.Task `json:"tasks"`
	ValidationMode string         `json:"validation_mode"`
}

type validateResponse struct {
	ValidationID string `json:"validation_id,omitempty"`
	*validation.Result
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireTasks(w, r, req.Tasks) {
		return
	}
	mode, err := validation.ParseMode(req.ValidationMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	res, validationID, err := s.engine.ValidateTasks(req.ProjectID, req.Tasks, mode)
	if err != nil {
		writeEngineError(w, r, err, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{ValidationID: validationID, Result: res})
}

type autoFixRequest struct {
	ValidationID string   `json:"validation_id"`
	ApplyFixes   []string `json:"apply_fixes"`
	DryRun       bool     `json:"dry_run"`
}

func (s *Server) handleAutoFix(w http.ResponseWriter, r *http.Request) {
	var req autoFixRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ValidationID == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "validation_id is required", nil)
		return
	}

	out, err := s.engine.AutoFix(req.ValidationID, req.ApplyFixes, req.DryRun)
	if err != nil {
		writeEngineError(w, r, err, http.StatusInternalServerError, CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type applyPhaseRequest struct {
	Tasks           []*models.Task `json:"tasks"`
	EnforcementMode string         `json:"enforcement_mode"`
}

type applyPhaseResponse struct {
	UpdatedTasks []*models.Task `json:"updated_tasks"`
	*rules.PhaseResult
}

func (s *Server) handleApplyPhase(w http.ResponseWriter, r *http.Request) {
	var req applyPhaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireTasks(w, r, req.Tasks) || !requireKnownPhases(w, r, req.Tasks) {
		return
	}
	mode, err := rules.ParseEnforcementMode(req.EnforcementMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	updated, res, err := s.engine.ApplyPhaseRules(req.Tasks, mode)
	if err != nil {
		writeEngineError(w, r, err, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	writeJSON(w, http.StatusOK, applyPhaseResponse{UpdatedTasks: updated, PhaseResult: res})
}

type applyGlobalRequest struct {
	Tasks []*models.Task `json:"tasks"`
	Rules []string       `json:"rules"`
}

type applyGlobalResponse struct {
	UpdatedTasks []*models.Task `json:"updated_tasks"`
	*rules.GlobalResult
}

func (s *Server) handleApplyGlobal(w http.ResponseWriter, r *http.Request) {
	var req applyGlobalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireTasks(w, r, req.Tasks) || !requireKnownPhases(w, r, req.Tasks) {
		return
	}

	updated, res, err := s.engine.ApplyGlobalRules(req.Tasks, req.Rules)
	if err != nil {
		writeEngineError(w, r, err, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	writeJSON(w, http.StatusOK, applyGlobalResponse{UpdatedTasks: updated, GlobalResult: res})
}

type planRequest struct {
	Tasks           []*models.Task         `json:"tasks"`
	ProjectContext  *models.ProjectContext `json:"project_context"`
	EnforcementMode string                 `json:"enforcement_mode"`
	GlobalRules     []string               `json:"global_rules"`
	ValidationMode  string                 `json:"validation_mode"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireTasks(w, r, req.Tasks) || !requireKnownPhases(w, r, req.Tasks) {
		return
	}
	enforcement, err := rules.ParseEnforcementMode(req.EnforcementMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}
	mode, err := validation.ParseMode(req.ValidationMode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	report, err := s.engine.RunPipeline(r.Context(), engine.PipelineRequest{
		ProjectID:   r.PathValue("id"),
		Tasks:       req.Tasks,
		Project:     req.ProjectContext,
		Enforcement: enforcement,
		GlobalRules: req.GlobalRules,
		Mode:        mode,
	})
	if err != nil {
		writeEngineError(w, r, err, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GraphView(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err, http.StatusInternalServerError, CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type eligibilityRequest struct {
	ProjectID      string         `json:"project_id"`
	AgentID        string         `json:"agent_id"`
	TaskID         string         `json:"task_id"`
	Tasks          []*models.Task `json:"tasks"`
	CompletedTasks []string       `json:"completed_tasks"`
	AssignedTasks  []string       `json:"assigned_tasks"`
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TaskID == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "task_id is required", nil)
		return
	}
	if req.ProjectID == "" && len(req.Tasks) == 0 {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "either project_id or tasks is required", nil)
		return
	}

	d, err := s.engine.CheckEligibility(r.Context(), engine.EligibilityRequest{
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		TaskID:    req.TaskID,
		Tasks:     req.Tasks,
		Completed: req.CompletedTasks,
		Assigned:  req.AssignedTasks,
	})
	if err != nil {
		writeEngineError(w, r, err, http.StatusBadRequest, CodeInvalidRequest)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
