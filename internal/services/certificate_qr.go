package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

const qrImageSize = 256

var allowedImageDataTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// encodeQRCode renders payload as a PNG QR code.
func encodeQRCode(payload domain.CertificateQRPayload) ([]byte, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(content), qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

func pngDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// isImageDataURL reports whether value is a base64 data URL of a supported raster image.
func isImageDataURL(value string) bool {
	header, body, ok := strings.Cut(value, ",")
	if !ok || body == "" {
		return false
	}
	mediaType, found := strings.CutPrefix(strings.ToLower(header), "data:")
	if !found {
		return false
	}
	mediaType, found = strings.CutSuffix(mediaType, ";base64")
	if !found {
		return false
	}
	supported := false
	for _, allowed := range allowedImageDataTypes {
		if mediaType == allowed {
			supported = true
			break
		}
	}
	if !supported {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(body)
	return err == nil
}

// certificateSigner computes the optional QR signature. A nil signer signs nothing.
type certificateSigner struct {
	key []byte
}

func newCertificateSigner(key string) *certificateSigner {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &certificateSigner{key: []byte(key)}
}

func (s *certificateSigner) Sign(certificateID, eventID string, eventType domain.EventType, issuedDate string) string {
	if s == nil {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(strings.Join([]string{certificateID, eventID, string(eventType), issuedDate}, "|")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *certificateSigner) Verify(signature, certificateID, eventID string, eventType domain.EventType, issuedDate string) bool {
	if s == nil || signature == "" {
		return false
	}
	expected := s.Sign(certificateID, eventID, eventType, issuedDate)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// verificationURL builds the public verification link for certificateID.
func verificationURL(baseURL, certificateID, signature string) string {
	link := strings.TrimRight(baseURL, "/") + "/certificates/verify/" + url.PathEscape(certificateID)
	if signature != "" {
		link += "?" + url.Values{"sig": []string{signature}}.Encode()
	}
	return link
}
