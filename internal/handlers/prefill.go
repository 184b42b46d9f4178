package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Yonad91/vital-events-sub002/internal/platform/auth"
	"github.com/Yonad91/vital-events-sub002/internal/platform/httpx"
	"github.com/Yonad91/vital-events-sub002/internal/services"
)

const maxPrefillBodySize = 256 * 1024

// PrefillHandlers derives form autofill patches from earlier registrations.
type PrefillHandlers struct {
	authn   *auth.Authenticator
	prefill services.PrefillService
}

// NewPrefillHandlers constructs a new PrefillHandlers instance.
func NewPrefillHandlers(authn *auth.Authenticator, prefill services.PrefillService) *PrefillHandlers {
	return &PrefillHandlers{authn: authn, prefill: prefill}
}

// Routes registers the /prefill endpoints.
func (h *PrefillHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/{target}", h.prefillForm)
}

type prefillRequest struct {
	SourceEventID string         `json:"sourceEventId"`
	IDNumber      string         `json:"idNumber"`
	Role          string         `json:"role"`
	SpouseSlot    string         `json:"spouseSlot"`
	Form          map[string]any `json:"form"`
}

type prefillResponse struct {
	ShouldAutofill bool           `json:"shouldAutofill"`
	Error          string         `json:"error,omitempty"`
	Role           string         `json:"role,omitempty"`
	Patch          map[string]any `json:"patch"`
	Merged         map[string]any `json:"merged"`
}

func (h *PrefillHandlers) prefillForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.prefill == nil {
		httpx.WriteError(ctx, w, httpx.NewError("prefill_service_unavailable", "prefill service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPrefillBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req prefillRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.prefill.Prefill(ctx, services.PrefillCommand{
		Target:        services.PrefillTarget(chi.URLParam(r, "target")),
		SourceEventID: strings.TrimSpace(req.SourceEventID),
		IDNumber:      req.IDNumber,
		Role:          req.Role,
		SpouseSlot:    strings.TrimSpace(req.SpouseSlot),
		Form:          req.Form,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPrefillInvalidInput):
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		case errors.Is(err, services.ErrPrefillSourceNotFound):
			httpx.WriteError(ctx, w, httpx.NotFound("event_not_found", "Source event not found"))
		default:
			httpx.WriteError(ctx, w, httpx.Internal("prefill_failed", err.Error()))
		}
		return
	}

	payload := prefillResponse{
		ShouldAutofill: result.ShouldAutofill,
		Error:          result.Error,
		Role:           result.Role,
		Patch:          result.Patch,
		Merged:         result.Merged,
	}
	if payload.Patch == nil {
		payload.Patch = map[string]any{}
	}
	if payload.Merged == nil {
		payload.Merged = map[string]any{}
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}
