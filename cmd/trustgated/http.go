package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"trustgate/core/audit"
	"trustgate/core/governance"
	"trustgate/core/trust"
	"trustgate/observability/tracing"
	storeaudit "trustgate/storage/audit"
)

// evaluateRequest is the wire form of a governance.Action.
type evaluateRequest struct {
	AgentID            string         `json:"agentId"`
	RequiredTrustLevel *int           `json:"requiredTrustLevel,omitempty"`
	Scope              string         `json:"scope,omitempty"`
	BudgetCategory     *string        `json:"budgetCategory,omitempty"`
	BudgetAmount       float64        `json:"budgetAmount,omitempty"`
	DataType           *string        `json:"dataType,omitempty"`
	Purpose            string         `json:"purpose,omitempty"`
	ActionType         string         `json:"actionType,omitempty"`
	Resource           string         `json:"resource,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

func (r evaluateRequest) toAction() governance.Action {
	action := governance.Action{
		AgentID:        r.AgentID,
		Scope:          r.Scope,
		BudgetCategory: r.BudgetCategory,
		BudgetAmount:   r.BudgetAmount,
		DataType:       r.DataType,
		Purpose:        r.Purpose,
		ActionType:     r.ActionType,
		Resource:       r.Resource,
		Extra:          r.Extra,
	}
	if r.RequiredTrustLevel != nil {
		level := trust.Level(*r.RequiredTrustLevel)
		action.RequiredTrustLevel = &level
	}
	return action
}

// decisionResponse is the wire form of a governance.Decision.
type decisionResponse struct {
	Outcome       string   `json:"outcome"`
	Allowed       bool     `json:"allowed"`
	Reasons       []string `json:"reasons"`
	AuditRecordID string   `json:"auditRecordId"`
}

func newDecisionResponse(d governance.Decision) decisionResponse {
	reasons := d.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return decisionResponse{
		Outcome:       string(d.Outcome),
		Allowed:       d.Allowed,
		Reasons:       reasons,
		AuditRecordID: d.AuditRecordID,
	}
}

// tamperRecorder is the instrumentation hook handleVerify reports a
// detected chain break to; observability.Governance() satisfies it.
type tamperRecorder interface {
	RecordChainTamper()
}

// server wires the governance engine and audit store to an HTTP surface.
type server struct {
	engine  *governance.Engine
	store   storeaudit.Store
	metrics tamperRecorder
}

func newRouter(s *server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/v1/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	r.HandleFunc("/v1/audit", s.handleAudit).Methods(http.MethodGet)
	r.HandleFunc("/v1/audit/verify", s.handleVerify).Methods(http.MethodGet)
	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action := req.toAction()
	ctx, finish := tracing.EvaluateSpan(r.Context(), action.AgentID)
	var (
		outcome, recordID string
		evalErr           error
	)
	defer func() { finish(outcome, recordID, evalErr) }()

	decision, err := s.engine.Evaluate(ctx, action)
	if err != nil {
		evalErr = err
		status := http.StatusInternalServerError
		if err == governance.ErrInvalidAgentID {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	outcome, recordID = string(decision.Outcome), decision.AuditRecordID

	writeJSON(w, http.StatusOK, newDecisionResponse(decision))
}

func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter := storeaudit.Filter{}
	q := r.URL.Query()
	if agent := q.Get("agent_id"); agent != "" {
		filter.AgentID = &agent
	}
	if action := q.Get("action"); action != "" {
		filter.Action = &action
	}
	if permitted := q.Get("permitted"); permitted != "" {
		parsed, err := strconv.ParseBool(permitted)
		if err != nil {
			writeError(w, http.StatusBadRequest, "permitted must be a boolean")
			return
		}
		filter.Permitted = &parsed
	}
	if start := q.Get("start_time"); start != "" {
		parsed, err := time.Parse(time.RFC3339, start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_time must be an ISO 8601 timestamp")
			return
		}
		ms := parsed.UnixMilli()
		filter.StartTime = &ms
	}
	if end := q.Get("end_time"); end != "" {
		parsed, err := time.Parse(time.RFC3339, end)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_time must be an ISO 8601 timestamp")
			return
		}
		ms := parsed.UnixMilli()
		filter.EndTime = &ms
	}
	if limit := q.Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = parsed
	}
	if offset := q.Get("offset"); offset != "" {
		parsed, err := strconv.Atoi(offset)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		filter.Offset = parsed
	}

	records, err := s.store.Query(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auditRecordsResponse(records))
}

// handleVerify walks the full audit trail and reports whether the chain
// is intact, recording a tamper metric the moment a break is found.
func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := audit.Verify(records)
	if !result.OK && s.metrics != nil {
		s.metrics.RecordChainTamper()
	}
	writeJSON(w, http.StatusOK, result)
}

func auditRecordsResponse(records []audit.Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		line, err := audit.MarshalNDJSON(r)
		if err != nil {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(line, &decoded); err != nil {
			continue
		}
		out = append(out, decoded)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
