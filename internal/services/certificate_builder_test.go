package services

import (
	"testing"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

type stubPhotoFinder map[string]string

func (s stubPhotoFinder) Locate(ref string) (string, bool) {
	path, ok := s[ref]
	return path, ok
}

func TestCertificateBuilderBirth(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	issued := time.Date(2024, 9, 21, 10, 0, 0, 0, time.UTC)
	event := domain.Event{
		ID:             "evt-1",
		Type:           domain.EventTypeBirth,
		RegistrationID: "BR-42",
		CreatedAt:      created,
		Data: map[string]any{
			"childFullNameAm":  "አበበ ከበደ ተሰማ",
			"childFullNameEn":  "Abebe Kebede Tesema",
			"childBirthDate":   map[string]any{"year": 2016, "month": 9, "day": 12},
			"childSexAm":       "ወንድ",
			"childPhoto":       "/uploads/childPhoto-1.png",
			"fatherFullNameAm": "ከበደ ተሰማ",
			"motherFullNameEn": "Almaz Tadesse",
			"placeOfBirthAm":   "አዲስ አበባ",
		},
	}
	builder := NewCertificateBuilder(stubPhotoFinder{"/uploads/childPhoto-1.png": "childPhoto-1.png"})
	requester := domain.User{ID: "u-1", Name: "Requester", Email: "req@example.com"}
	registrar := domain.User{ID: "r-1", Name: "Registrar"}

	cert := builder.Build(event, CertificateRequest{CertificateID: "CERT-evt-1-A", IssuedAt: issued}, requester, &registrar)

	if cert.CertificateID != "CERT-evt-1-A" || cert.EventID != "evt-1" {
		t.Fatalf("unexpected ids: %+v", cert)
	}
	if cert.RegistrationNumber != "BR-42" {
		t.Fatalf("expected registration number BR-42, got %q", cert.RegistrationNumber)
	}
	if !cert.RegistrationDate.Equal(created) {
		t.Fatalf("expected registration date from createdAt, got %v", cert.RegistrationDate)
	}
	if !cert.IssueDate.Equal(issued) {
		t.Fatalf("expected issue date %v, got %v", issued, cert.IssueDate)
	}
	if cert.RequesterName != "Requester" || cert.RequesterEmail != "req@example.com" || cert.RegistrarName != "Registrar" {
		t.Fatalf("unexpected people: %+v", cert)
	}
	if cert.Birth == nil || cert.Marriage != nil || cert.Death != nil {
		t.Fatalf("expected birth details only")
	}
	child := cert.Birth.Child
	if child.FullName.Am != "አበበ ከበደ ተሰማ" || child.FullName.En != "Abebe Kebede Tesema" {
		t.Fatalf("unexpected child name %+v", child.FullName)
	}
	if child.GivenName.Am != "አበበ" || child.FatherName.En != "Kebede" {
		t.Fatalf("expected split name parts, got %+v / %+v", child.GivenName, child.FatherName)
	}
	if child.BirthDate != (domain.DateParts{Year: 2016, Month: 9, Day: 12}) {
		t.Fatalf("unexpected birth date %+v", child.BirthDate)
	}
	if child.Sex.Am != "ወንድ" || child.Sex.En != "ወንድ" {
		t.Fatalf("expected sex display fallback, got %+v", child.Sex)
	}
	if child.PhotoPath != "childPhoto-1.png" || cert.PrimaryPhoto != "childPhoto-1.png" {
		t.Fatalf("expected located photo, got %q / %q", child.PhotoPath, cert.PrimaryPhoto)
	}
	if cert.Birth.Father.FullName.En != "ከበደ ተሰማ" {
		t.Fatalf("expected english display to fall back to amharic, got %+v", cert.Birth.Father.FullName)
	}
	if cert.Birth.Mother.FullName.Am != "Almaz Tadesse" {
		t.Fatalf("expected amharic display to fall back to english, got %+v", cert.Birth.Mother.FullName)
	}
	if cert.Birth.PlaceOfBirth.En != "አዲስ አበባ" {
		t.Fatalf("unexpected place of birth %+v", cert.Birth.PlaceOfBirth)
	}
}

func TestCertificateBuilderRegistrationDateFromData(t *testing.T) {
	event := domain.Event{
		ID:        "evt-2",
		Type:      domain.EventTypeDeath,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Data: map[string]any{
			"registrationDate":   "2024-03-15",
			"registrationNumber": "DR-7",
			"deceasedFullNameEn": "Tesfaye Alemu",
			"deathDate":          "2024-03-01",
			"deceasedPhoto":      "missing.png",
		},
	}
	cert := NewCertificateBuilder(stubPhotoFinder{}).Build(event, CertificateRequest{CertificateID: "C"}, domain.User{}, nil)

	if want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC); !cert.RegistrationDate.Equal(want) {
		t.Fatalf("expected registration date %v, got %v", want, cert.RegistrationDate)
	}
	if cert.RegistrationNumber != "DR-7" {
		t.Fatalf("expected registration number from data, got %q", cert.RegistrationNumber)
	}
	if cert.RegistrarName != "" {
		t.Fatalf("expected blank registrar, got %q", cert.RegistrarName)
	}
	if cert.Death == nil || cert.Death.DeathDate != (domain.DateParts{Year: 2024, Month: 3, Day: 1}) {
		t.Fatalf("unexpected death details %+v", cert.Death)
	}
	if cert.Death.Deceased.PhotoPath != "" || cert.PrimaryPhoto != "" {
		t.Fatalf("expected unresolved photo to stay blank")
	}
}

func TestCertificateBuilderMarriageKeepsInlinePhoto(t *testing.T) {
	event := domain.Event{
		ID:   "mar-1",
		Type: domain.EventTypeMarriage,
		Data: map[string]any{
			"wifeFullNameAm":    "ሰላም ታደሰ",
			"husbandFullNameEn": "Dawit Bekele",
			"husbandPhoto":      tinyPNGDataURL,
			"marriageDate":      map[string]any{"year": "2015", "month": "1", "day": "5"},
		},
	}
	cert := NewCertificateBuilder(nil).Build(event, CertificateRequest{}, domain.User{}, nil)
	if cert.Marriage == nil {
		t.Fatalf("expected marriage details")
	}
	if cert.Marriage.Husband.PhotoPath != tinyPNGDataURL || cert.PrimaryPhoto != tinyPNGDataURL {
		t.Fatalf("expected inline photo to be kept")
	}
	if cert.Marriage.MarriageDate != (domain.DateParts{Year: 2015, Month: 1, Day: 5}) {
		t.Fatalf("unexpected marriage date %+v", cert.Marriage.MarriageDate)
	}
	if cert.Marriage.Wife.FullName.En != "ሰላም ታደሰ" {
		t.Fatalf("unexpected wife name %+v", cert.Marriage.Wife.FullName)
	}
}

func TestCertificateBuilderUnknownTypeKeepsBaseFields(t *testing.T) {
	event := domain.Event{ID: "div-1", Type: domain.EventTypeDivorce, RegistrationID: "DV-1", Data: nil}
	cert := NewCertificateBuilder(nil).Build(event, CertificateRequest{CertificateID: "CERT-div-1-X"}, domain.User{Email: "a@b.c"}, nil)
	if cert.Birth != nil || cert.Marriage != nil || cert.Death != nil {
		t.Fatalf("expected no type details for divorce")
	}
	if cert.RegistrationNumber != "DV-1" || cert.CertificateID != "CERT-div-1-X" || cert.RequesterEmail != "a@b.c" {
		t.Fatalf("unexpected base fields %+v", cert)
	}
}
