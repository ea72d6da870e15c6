package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/types"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRuntimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSON(w, apierrors.ExecutionBadJSON("Invalid JSON body"))
		return
	}
	if req.RuntimeID == "" || req.Image == "" {
		apierrors.WriteJSON(w, apierrors.ExecutionBadRequest("runtimeId and image are required"))
		return
	}

	resp, apiErr := s.orchestrator.Create(r.Context(), req)
	if apiErr != nil {
		apierrors.WriteJSON(w, apiErr)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := int64(0)
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = parsed
		}
	}
	continueToken := r.URL.Query().Get("continue")

	result, apiErr := s.orchestrator.List(r.Context(), limit, continueToken)
	if apiErr != nil {
		apierrors.WriteJSON(w, apiErr)
		return
	}

	w.Header().Set("X-PAGINATION-LIMIT", fmt.Sprintf("%d", result.Limit))
	w.Header().Set("X-PAGINATION-CONTINUE", result.Continue)
	w.Header().Set("X-PAGINATION-REMAINING", fmt.Sprintf("%d", result.Remaining))
	writeJSON(w, http.StatusOK, result.Items)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	runtimeID := chi.URLParam(r, "runtimeId")
	desc, apiErr := s.orchestrator.Describe(r.Context(), runtimeID)
	if apiErr != nil {
		apierrors.WriteJSON(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	runtimeID := chi.URLParam(r, "runtimeId")
	result, apiErr := s.orchestrator.Delete(r.Context(), runtimeID)
	if apiErr != nil {
		apierrors.WriteJSON(w, apiErr)
		return
	}
	writeJSON(w, result.Code, map[string]string{"message": result.Message})
}

// writeJSON renders v as the JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
