package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"church-admin-api/internal/middleware"
	"church-admin-api/internal/model"
	"church-admin-api/internal/service"
	"church-admin-api/pkg/apierror"
)

type AccessRequestHandler struct {
	service *service.AccessRequestService
}

func NewAccessRequestHandler(service *service.AccessRequestService) *AccessRequestHandler {
	return &AccessRequestHandler{service: service}
}

// Submit is the public entry point of the approval workflow.
func (h *AccessRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.SubmitAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	request, err := h.service.Submit(r.Context(), payload, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, request, nil)
}

func (h *AccessRequestHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(chi.URLParam(r, "email"))
	if email == "" {
		writeError(w, apierror.Validation("email is required", "email"))
		return
	}

	pending, err := h.service.HasPendingRequest(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.CheckEmailResult{
		Email:             strings.ToLower(email),
		HasPendingRequest: pending,
	}, nil)
}

func (h *AccessRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := model.AccessRequestFilter{
		Page:   queryInt(query.Get("page"), 1),
		Limit:  queryInt(query.Get("limit"), 10),
		Status: strings.TrimSpace(query.Get("status")),
		Search: strings.TrimSpace(query.Get("search")),
	}

	requests, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"requests": requests}, paginationMeta(filter.Page, filter.Limit, total))
}

func (h *AccessRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		writeError(w, apierror.Validation("request id is required", "id"))
		return
	}

	request, err := h.service.Get(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, request, nil)
}

func (h *AccessRequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		writeError(w, apierror.Validation("request id is required", "id"))
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	var payload model.UpdateAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	request, err := h.service.Update(r.Context(), requestID, payload, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, request, nil)
}

func (h *AccessRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		writeError(w, apierror.Validation("request id is required", "id"))
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	user, err := h.service.Approve(r.Context(), requestID, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"user": user}, nil)
}

func (h *AccessRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		writeError(w, apierror.Validation("request id is required", "id"))
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	var payload model.RejectAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	if err := h.service.Reject(r.Context(), requestID, payload.Reason, actor); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"rejected": true}, nil)
}

func (h *AccessRequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		writeError(w, apierror.Validation("request id is required", "id"))
		return
	}

	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := h.service.Remove(r.Context(), requestID, actor); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}

func (h *AccessRequestHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, stats, nil)
}

func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
