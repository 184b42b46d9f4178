package domain

import "time"

// CertificateFormat is the byte format an artifact was persisted in.
type CertificateFormat string

const (
	CertificateFormatPDF  CertificateFormat = "pdf"
	CertificateFormatHTML CertificateFormat = "html"
)

// Bilingual is a display value in Amharic and English.
type Bilingual struct {
	Am string `json:"am"`
	En string `json:"en"`
}

// IsEmpty reports whether both languages are blank.
func (b Bilingual) IsEmpty() bool {
	return b.Am == "" && b.En == ""
}

// CertificatePerson is the display projection of one person named on a certificate.
type CertificatePerson struct {
	IDNumber        string    `json:"idNumber,omitempty"`
	FullName        Bilingual `json:"fullName"`
	GivenName       Bilingual `json:"givenName"`
	FatherName      Bilingual `json:"fatherName"`
	GrandfatherName Bilingual `json:"grandfatherName"`
	Sex             Bilingual `json:"sex"`
	Nationality     Bilingual `json:"nationality"`
	Religion        Bilingual `json:"religion"`
	Ethnicity       Bilingual `json:"ethnicity"`
	Residence       Bilingual `json:"residence"`
	BirthDate       DateParts `json:"birthDate"`
	PhotoPath       string    `json:"photoPath,omitempty"`
}

// BirthDetails is the birth-specific part of CertificateData.
type BirthDetails struct {
	Child        CertificatePerson `json:"child"`
	Father       CertificatePerson `json:"father"`
	Mother       CertificatePerson `json:"mother"`
	PlaceOfBirth Bilingual         `json:"placeOfBirth"`
	Region       Bilingual         `json:"region"`
	Zone         Bilingual         `json:"zone"`
	Woreda       Bilingual         `json:"woreda"`
	Kebele       Bilingual         `json:"kebele"`
}

// MarriageDetails is the marriage-specific part of CertificateData.
type MarriageDetails struct {
	Wife          CertificatePerson `json:"wife"`
	Husband       CertificatePerson `json:"husband"`
	MarriageDate  DateParts         `json:"marriageDate"`
	MarriagePlace Bilingual         `json:"marriagePlace"`
	MarriageType  Bilingual         `json:"marriageType"`
}

// DeathDetails is the death-specific part of CertificateData.
type DeathDetails struct {
	Deceased   CertificatePerson `json:"deceased"`
	DeathDate  DateParts         `json:"deathDate"`
	DeathPlace Bilingual         `json:"deathPlace"`
	Cause      Bilingual         `json:"cause"`
}

// CertificateData is the renderable view of one event at one issuance. Exactly one of Birth,
// Marriage or Death is set for those event types; other types carry only the common fields.
type CertificateData struct {
	CertificateID      string           `json:"certificateId"`
	EventID            string           `json:"eventId"`
	EventType          EventType        `json:"eventType"`
	RegistrationNumber string           `json:"registrationNumber"`
	RegistrationDate   time.Time        `json:"registrationDate"`
	IssueDate          time.Time        `json:"issueDate"`
	RegistrarName      string           `json:"registrarName"`
	RequesterName      string           `json:"requesterName"`
	RequesterEmail     string           `json:"requesterEmail"`
	PrimaryPhoto       string           `json:"primaryPhoto,omitempty"`
	Birth              *BirthDetails    `json:"birth,omitempty"`
	Marriage           *MarriageDetails `json:"marriage,omitempty"`
	Death              *DeathDetails    `json:"death,omitempty"`
}

// CertificateQRPayload is the JSON object encoded in the certificate's QR code.
type CertificateQRPayload struct {
	CertificateID   string    `json:"certificateId"`
	EventID         string    `json:"eventId"`
	EventType       EventType `json:"eventType"`
	IssuedDate      string    `json:"issuedDate"`
	VerificationURL string    `json:"verificationUrl"`
	Signature       string    `json:"signature,omitempty"`
}

// CertificateIssuance is the persisted index entry written for every generated certificate.
type CertificateIssuance struct {
	ID                 string
	EventID            string
	EventType          EventType
	RegistrationNumber string
	RequesterID        string
	RequesterName      string
	RegistrarName      string
	Format             CertificateFormat
	FileName           string
	Signature          string
	IssuedAt           time.Time
}

// CertificateArtifact describes a stored artifact.
type CertificateArtifact struct {
	CertificateID string
	FileName      string
	Format        CertificateFormat
	ContentType   string
	Size          int64
	CreatedAt     time.Time
	ModifiedAt    time.Time
}
