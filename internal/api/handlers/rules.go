package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/domain/rules"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// RulesHandler handles reconciliation rule requests.
type RulesHandler struct {
	*Base
	repo storage.RuleRepository
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(repo storage.RuleRepository, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{
		Base: NewBase(logger),
		repo: repo,
	}
}

// List handles GET /rules - optional isActive, ruleType and priority filters.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter storage.RuleFilter

	isActive, ok := ParseOptionalBool(r, "isActive")
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("isActive must be true or false"))
		return
	}
	filter.IsActive = isActive

	priority, ok := ParseOptionalInt(r, "priority")
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("priority must be an integer"))
		return
	}
	filter.Priority = priority

	if raw := r.URL.Query().Get("ruleType"); raw != "" {
		ruleType, ok := parseRuleType(raw)
		if !ok {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unknown ruleType "+strconv.Quote(raw)))
			return
		}
		filter.RuleType = &ruleType
	}

	found, err := h.repo.ListRules(r.Context(), filter)
	if err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return
	}

	response := dto.RuleListResponse{Rules: make([]dto.RuleResponse, 0, len(found))}
	for _, rule := range found {
		response.Rules = append(response.Rules, toRuleResponse(rule))
	}

	h.WriteData(w, http.StatusOK, response)
}

// Get handles GET /rules/{id}.
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "rule")
	if !ok {
		return
	}

	rule, err := h.repo.GetRule(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return
	}

	h.WriteData(w, http.StatusOK, toRuleResponse(*rule))
}

// Create handles POST /rules.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeRule(w, r)
	if !ok {
		return
	}

	rule, err := h.repo.CreateRule(r.Context(), input)
	if err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return
	}

	h.WriteData(w, http.StatusCreated, toRuleResponse(*rule))
}

// Update handles PUT /rules/{id} - replaces every writable field.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "rule")
	if !ok {
		return
	}

	input, ok := h.decodeRule(w, r)
	if !ok {
		return
	}

	rule, err := h.repo.UpdateRule(r.Context(), id, input)
	if err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return
	}

	h.WriteData(w, http.StatusOK, toRuleResponse(*rule))
}

// Patch handles PATCH /rules/{id}?isActive=bool.
func (h *RulesHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "rule")
	if !ok {
		return
	}

	active, ok := ParseOptionalBool(r, "isActive")
	if !ok || active == nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("isActive query parameter must be true or false"))
		return
	}

	rule, err := h.repo.SetRuleActive(r.Context(), id, *active)
	if err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return
	}

	h.WriteData(w, http.StatusOK, toRuleResponse(*rule))
}

// Delete handles DELETE /rules/{id}.
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "rule")
	if !ok {
		return
	}

	if err := h.repo.DeleteRule(r.Context(), id); err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeRule reads a rule body and rejects values the matcher could not
// evaluate, so stored rules are normally well-formed.
func (h *RulesHandler) decodeRule(w http.ResponseWriter, r *http.Request) (storage.RuleInput, bool) {
	var req dto.RuleRequest
	if !h.DecodeJSON(w, r, &req) {
		return storage.RuleInput{}, false
	}

	ruleType := model.RuleType(req.RuleType)
	if err := rules.Validate(ruleType, req.RuleValue); err != nil {
		h.WriteServiceError(w, r, "rule", err)
		return storage.RuleInput{}, false
	}

	return storage.RuleInput{
		RuleName:    req.RuleName,
		RuleType:    ruleType,
		Priority:    req.Priority,
		IsActive:    req.Active(),
		Description: req.Description,
		RuleValue:   req.RuleValue,
	}, true
}

func parseRuleType(raw string) (model.RuleType, bool) {
	for _, known := range model.KnownRuleTypes() {
		if string(known) == raw {
			return known, true
		}
	}
	return "", false
}

func toRuleResponse(rule model.Rule) dto.RuleResponse {
	return dto.RuleResponse{
		ID:          rule.ID,
		RuleName:    rule.RuleName,
		RuleType:    string(rule.RuleType),
		Priority:    rule.Priority,
		IsActive:    rule.IsActive,
		Description: rule.Description,
		RuleValue:   rule.RuleValue,
		CreatedAt:   rule.CreatedAt.UTC(),
	}
}
