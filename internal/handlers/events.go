package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Yonad91/vital-events-sub002/internal/platform/auth"
	"github.com/Yonad91/vital-events-sub002/internal/platform/httpx"
	"github.com/Yonad91/vital-events-sub002/internal/services"
)

// EventHandlers exposes issuance history for registered events to office staff.
type EventHandlers struct {
	authn        *auth.Authenticator
	certificates services.CertificateService
}

// NewEventHandlers constructs a new EventHandlers instance.
func NewEventHandlers(authn *auth.Authenticator, certificates services.CertificateService) *EventHandlers {
	return &EventHandlers{authn: authn, certificates: certificates}
}

// Routes registers the /events endpoints.
func (h *EventHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.OfficeRoles...))
	}
	r.Get("/{eventId}/certificates", h.listCertificates)
}

type issuanceResponse struct {
	CertificateID      string `json:"certificateId"`
	EventType          string `json:"eventType"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Format             string `json:"format"`
	FileName           string `json:"fileName"`
	RequesterID        string `json:"requesterId,omitempty"`
	RequesterName      string `json:"requesterName,omitempty"`
	RegistrarName      string `json:"registrarName,omitempty"`
	Signed             bool   `json:"signed"`
	IssuedAt           string `json:"issuedAt"`
	DownloadURL        string `json:"downloadUrl"`
}

type issuanceListResponse struct {
	EventID      string             `json:"eventId"`
	Certificates []issuanceResponse `json:"certificates"`
}

func (h *EventHandlers) listCertificates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.certificates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("certificate_service_unavailable", "certificate service unavailable", http.StatusServiceUnavailable))
		return
	}
	eventID := strings.TrimSpace(chi.URLParam(r, "eventId"))
	issuances, err := h.certificates.ListForEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, services.ErrCertificateNotFound) {
			// An event that was never issued a certificate has an empty history.
			issuances = nil
		} else {
			writeCertificateError(ctx, w, err)
			return
		}
	}

	items := make([]issuanceResponse, 0, len(issuances))
	for _, issuance := range issuances {
		items = append(items, issuanceResponse{
			CertificateID:      issuance.ID,
			EventType:          string(issuance.EventType),
			RegistrationNumber: issuance.RegistrationNumber,
			Format:             string(issuance.Format),
			FileName:           issuance.FileName,
			RequesterID:        issuance.RequesterID,
			RequesterName:      issuance.RequesterName,
			RegistrarName:      issuance.RegistrarName,
			Signed:             issuance.Signature != "",
			IssuedAt:           formatTime(issuance.IssuedAt),
			DownloadURL:        fmt.Sprintf("/certificates/%s/download", issuance.ID),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, issuanceListResponse{EventID: eventID, Certificates: items})
}
