package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Yonad91/vital-events-sub002/internal/platform/httpx"
	"github.com/Yonad91/vital-events-sub002/internal/services"
)

// OfficialBirthHandlers serves issued artifacts to anyone holding the certificate id.
type OfficialBirthHandlers struct {
	certificates services.CertificateService
	limiter      rateLimiter
}

// NewOfficialBirthHandlers constructs the public preview handlers. limit caps requests per
// minute for each client address; zero disables limiting.
func NewOfficialBirthHandlers(certificates services.CertificateService, limit int) *OfficialBirthHandlers {
	return &OfficialBirthHandlers{
		certificates: certificates,
		limiter:      newFixedWindowLimiter(limit, time.Minute, nil),
	}
}

// Routes registers the /official-birth-certificates endpoints.
func (h *OfficialBirthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(limitByClient(h.limiter))
	r.Get("/preview/{certificateId}", h.previewCertificate)
	r.Get("/info/{certificateId}", h.certificateInfo)
}

type certificateInfoResponse struct {
	CertificateID string `json:"certificateId"`
	FileName      string `json:"fileName"`
	Format        string `json:"format"`
	ContentType   string `json:"contentType"`
	Size          int64  `json:"size"`
	Created       string `json:"created"`
	Modified      string `json:"modified"`
}

func (h *OfficialBirthHandlers) previewCertificate(w http.ResponseWriter, r *http.Request) {
	serveArtifact(w, r, h.certificates, "inline")
}

func (h *OfficialBirthHandlers) certificateInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.certificates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("certificate_service_unavailable", "certificate service unavailable", http.StatusServiceUnavailable))
		return
	}
	artifact, err := h.certificates.Info(ctx, chi.URLParam(r, "certificateId"))
	if err != nil {
		writeCertificateError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, certificateInfoResponse{
		CertificateID: artifact.CertificateID,
		FileName:      artifact.FileName,
		Format:        string(artifact.Format),
		ContentType:   artifact.ContentType,
		Size:          artifact.Size,
		Created:       formatTime(artifact.CreatedAt),
		Modified:      formatTime(artifact.ModifiedAt),
	})
}
