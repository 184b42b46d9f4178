package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/auth"
	"github.com/Yonad91/vital-events-sub002/internal/platform/httpx"
	"github.com/Yonad91/vital-events-sub002/internal/services"
)

// A verification image arrives as a data URL, so the body limit leaves room for one photo.
const maxGenerateBodySize = 4 << 20

// CertificateHandlers exposes certificate generation, download and public verification.
type CertificateHandlers struct {
	authn        *auth.Authenticator
	certificates services.CertificateService
	verification services.VerificationService
	limiter      rateLimiter
	generateMW   []func(http.Handler) http.Handler
}

// CertificateOption customises CertificateHandlers.
type CertificateOption func(*CertificateHandlers)

// WithVerifyRateLimit caps public verification calls at limit per window for each client address.
// A zero limit disables it.
func WithVerifyRateLimit(limit int, window time.Duration) CertificateOption {
	return func(h *CertificateHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, nil)
	}
}

// WithGenerateMiddlewares wraps the generate endpoint after authentication has run.
func WithGenerateMiddlewares(mw ...func(http.Handler) http.Handler) CertificateOption {
	return func(h *CertificateHandlers) {
		for _, m := range mw {
			if m != nil {
				h.generateMW = append(h.generateMW, m)
			}
		}
	}
}

// NewCertificateHandlers constructs a new CertificateHandlers instance.
func NewCertificateHandlers(authn *auth.Authenticator, certificates services.CertificateService, verification services.VerificationService, opts ...CertificateOption) *CertificateHandlers {
	h := &CertificateHandlers{
		authn:        authn,
		certificates: certificates,
		verification: verification,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /certificates endpoints. Verification stays public.
func (h *CertificateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(limitByClient(h.limiter)).Get("/verify/{certificateId}", h.verifyCertificate)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireFirebaseAuth())
		}
		protected.With(h.generateMW...).Post("/generate", h.generateCertificate)
		protected.Get("/{certificateId}/download", h.downloadCertificate)
	})
}

type generateCertificateRequest struct {
	EventID           string `json:"eventId"`
	VerificationImage string `json:"verificationImage"`
}

type generateCertificateResponse struct {
	CertificateID   string                      `json:"certificateId"`
	PDFPath         string                      `json:"pdfPath"`
	FileName        string                      `json:"fileName"`
	Format          string                      `json:"format"`
	QRCodeDataURL   string                      `json:"qrCodeDataUrl,omitempty"`
	QRPayload       domain.CertificateQRPayload `json:"qrPayload"`
	CertificateData domain.CertificateData      `json:"certificateData"`
	DownloadURL     string                      `json:"downloadUrl"`
}

type verificationResponse struct {
	Verified           bool           `json:"verified"`
	CertificateID      string         `json:"certificateId"`
	EventType          string         `json:"eventType"`
	RegistrationNumber string         `json:"registrationNumber"`
	IssuedDate         string         `json:"issuedDate"`
	Registrar          string         `json:"registrar"`
	Requester          string         `json:"requester"`
	EventData          map[string]any `json:"eventData"`
	SignatureValid     *bool          `json:"signatureValid,omitempty"`
}

func (h *CertificateHandlers) generateCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.certificates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("certificate_service_unavailable", "certificate service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxGenerateBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req generateCertificateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.EventID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "eventId is required", http.StatusBadRequest))
		return
	}

	result, err := h.certificates.Generate(ctx, services.GenerateCertificateCommand{
		EventID:           strings.TrimSpace(req.EventID),
		RequesterID:       strings.TrimSpace(identity.UID),
		VerificationImage: strings.TrimSpace(req.VerificationImage),
		RequestID:         requestID(ctx),
		IPAddress:         clientIP(r),
		UserAgent:         r.UserAgent(),
	})
	if err != nil {
		writeCertificateError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, generateCertificateResponse{
		CertificateID:   result.CertificateID,
		PDFPath:         result.FileName,
		FileName:        result.FileName,
		Format:          string(result.Format),
		QRCodeDataURL:   result.QRCodeDataURL,
		QRPayload:       result.QRPayload,
		CertificateData: result.CertificateData,
		DownloadURL:     result.DownloadPath,
	})
}

func (h *CertificateHandlers) downloadCertificate(w http.ResponseWriter, r *http.Request) {
	serveArtifact(w, r, h.certificates, "attachment")
}

func (h *CertificateHandlers) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verification == nil {
		httpx.WriteError(ctx, w, httpx.NewError("verification_service_unavailable", "verification service unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.verification.Verify(ctx, services.VerifyCertificateCommand{
		CertificateID: strings.TrimSpace(chi.URLParam(r, "certificateId")),
		Signature:     strings.TrimSpace(r.URL.Query().Get("sig")),
	})
	if err != nil {
		if errors.Is(err, services.ErrVerificationNotFound) {
			httpx.WriteError(ctx, w, httpx.NotFound("certificate_not_found", "Certificate not found or no longer valid"))
			return
		}
		httpx.WriteError(ctx, w, httpx.Internal("verification_failed", err.Error()))
		return
	}

	eventData := result.EventData
	if eventData == nil {
		eventData = map[string]any{}
	}
	httpx.WriteJSON(w, http.StatusOK, verificationResponse{
		Verified:           result.SignatureValid == nil || *result.SignatureValid,
		CertificateID:      result.CertificateID,
		EventType:          string(result.EventType),
		RegistrationNumber: result.RegistrationNumber,
		IssuedDate:         result.IssuedDate,
		Registrar:          result.Registrar,
		Requester:          result.Requester,
		EventData:          eventData,
		SignatureValid:     result.SignatureValid,
	})
}

// serveArtifact streams the stored artifact named by the certificateId route parameter.
func serveArtifact(w http.ResponseWriter, r *http.Request, certificates services.CertificateService, disposition string) {
	ctx := r.Context()
	if certificates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("certificate_service_unavailable", "certificate service unavailable", http.StatusServiceUnavailable))
		return
	}
	file, err := certificates.Open(ctx, chi.URLParam(r, "certificateId"))
	if err != nil {
		writeCertificateError(ctx, w, err)
		return
	}
	defer file.Body.Close()
	streamArtifact(w, r, file.Body, file.Artifact.ContentType, file.Artifact.FileName, file.Artifact.Size, disposition)
}

func writeCertificateError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCertificateInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
	case errors.Is(err, services.ErrCertificateEventNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("event_not_found", "Event not found"))
	case errors.Is(err, services.ErrCertificateUserNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("user_not_found", "User not found"))
	case errors.Is(err, services.ErrCertificateNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("certificate_not_found", "Certificate not found"))
	case errors.Is(err, services.ErrCertificateStorage):
		httpx.WriteError(ctx, w, httpx.Internal("certificate_storage_unavailable", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("certificate_generation_failed", err.Error()))
	}
}
