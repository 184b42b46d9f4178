package services

import (
	"strings"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

// PhotoFinder resolves a photo reference to a stored file path.
type PhotoFinder interface {
	Locate(ref string) (string, bool)
}

// CertificateRequest carries the per-issuance values of a certificate.
type CertificateRequest struct {
	CertificateID string
	IssuedAt      time.Time
}

// CertificateBuilder derives the renderable certificate view of an event.
type CertificateBuilder struct {
	photos PhotoFinder
}

// NewCertificateBuilder returns a builder resolving photos through photos, which may be nil.
func NewCertificateBuilder(photos PhotoFinder) *CertificateBuilder {
	return &CertificateBuilder{photos: photos}
}

// Build combines event, request and the requesting and registering users into CertificateData.
// Event types without a dedicated layout get the common fields only. A nil registrar leaves the
// registrar name blank.
func (b *CertificateBuilder) Build(event domain.Event, req CertificateRequest, requester domain.User, registrar *domain.User) domain.CertificateData {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}

	registered := event.CreatedAt.UTC()
	if parts := lookupDate(data, "registrationDate", "dateOfRegistration"); !parts.IsZero() && parts.Month >= 1 && parts.Month <= 12 {
		day := parts.Day
		if day == 0 {
			day = 1
		}
		registered = time.Date(parts.Year, time.Month(parts.Month), day, 0, 0, 0, 0, time.UTC)
	}

	cert := domain.CertificateData{
		CertificateID:      req.CertificateID,
		EventID:            event.ID,
		EventType:          event.Type,
		RegistrationNumber: firstNonBlank(event.RegistrationID, lookupString(data, "registrationNumber", "registrationId")),
		RegistrationDate:   registered,
		IssueDate:          req.IssuedAt.UTC(),
		RequesterName:      requester.DisplayName(),
		RequesterEmail:     requester.Email,
	}
	if registrar != nil {
		cert.RegistrarName = registrar.DisplayName()
	}

	switch event.Type {
	case domain.EventTypeBirth:
		birth := b.birthDetails(data)
		cert.Birth = &birth
		cert.PrimaryPhoto = birth.Child.PhotoPath
	case domain.EventTypeMarriage:
		marriage := b.marriageDetails(data)
		cert.Marriage = &marriage
		cert.PrimaryPhoto = firstNonBlank(marriage.Wife.PhotoPath, marriage.Husband.PhotoPath)
	case domain.EventTypeDeath:
		death := b.deathDetails(data)
		cert.Death = &death
		cert.PrimaryPhoto = death.Deceased.PhotoPath
	}
	return cert
}

func (b *CertificateBuilder) birthDetails(data map[string]any) domain.BirthDetails {
	child := b.person(ResolvePerson(data, PersonChild))
	if child.BirthDate.IsZero() {
		child.BirthDate = lookupDate(data, "birthDate", "dateOfBirth")
	}
	if child.Sex.IsEmpty() {
		child.Sex = display(lookupString(data, "sexAm", "sex", "genderAm", "gender"), lookupString(data, "sexEn", "genderEn"))
	}
	return domain.BirthDetails{
		Child:  child,
		Father: b.person(ResolvePerson(data, PersonFather)),
		Mother: b.person(ResolvePerson(data, PersonMother)),
		PlaceOfBirth: display(
			lookupString(data, "childPlaceOfBirthAm", "placeOfBirthAm", "birthPlaceAm", "placeOfBirth"),
			lookupString(data, "childPlaceOfBirthEn", "placeOfBirthEn", "birthPlaceEn"),
		),
		Region: display(lookupString(data, "childRegionAm", "regionAm", "region"), lookupString(data, "childRegionEn", "regionEn")),
		Zone:   display(lookupString(data, "childZoneAm", "zoneAm", "zone"), lookupString(data, "childZoneEn", "zoneEn")),
		Woreda: display(lookupString(data, "childWoredaAm", "woredaAm", "woreda"), lookupString(data, "childWoredaEn", "woredaEn")),
		Kebele: display(lookupString(data, "childKebeleAm", "kebeleAm", "kebele"), lookupString(data, "childKebeleEn", "kebeleEn")),
	}
}

func (b *CertificateBuilder) marriageDetails(data map[string]any) domain.MarriageDetails {
	return domain.MarriageDetails{
		Wife:         b.person(ResolvePerson(data, PersonWife)),
		Husband:      b.person(ResolvePerson(data, PersonHusband)),
		MarriageDate: lookupDate(data, "marriageDate", "dateOfMarriage"),
		MarriagePlace: display(
			lookupString(data, "marriagePlaceAm", "placeOfMarriageAm", "marriagePlace"),
			lookupString(data, "marriagePlaceEn", "placeOfMarriageEn"),
		),
		MarriageType: display(
			lookupString(data, "marriageTypeAm", "marriageType"),
			lookupString(data, "marriageTypeEn"),
		),
	}
}

func (b *CertificateBuilder) deathDetails(data map[string]any) domain.DeathDetails {
	return domain.DeathDetails{
		Deceased:  b.person(ResolvePerson(data, PersonDeceased)),
		DeathDate: lookupDate(data, "deathDate", "dateOfDeath"),
		DeathPlace: display(
			lookupString(data, "deathPlaceAm", "placeOfDeathAm", "deathPlace"),
			lookupString(data, "deathPlaceEn", "placeOfDeathEn"),
		),
		Cause: display(
			lookupString(data, "deathCauseAm", "causeOfDeathAm", "deathCause"),
			lookupString(data, "deathCauseEn", "causeOfDeathEn"),
		),
	}
}

func (b *CertificateBuilder) person(p PersonProjection) domain.CertificatePerson {
	person := domain.CertificatePerson{
		IDNumber:        p.IDNumber,
		FullName:        display(p.FullNameAm, p.FullNameEn),
		GivenName:       display(p.GivenName.Am, p.GivenName.En),
		FatherName:      display(p.FatherName.Am, p.FatherName.En),
		GrandfatherName: display(p.GrandfatherName.Am, p.GrandfatherName.En),
		Sex:             display(p.Sex.Am, p.Sex.En),
		Nationality:     display(p.Nationality.Am, p.Nationality.En),
		Religion:        display(p.Religion.Am, p.Religion.En),
		Ethnicity:       display(p.Ethnicity.Am, p.Ethnicity.En),
		Residence:       display(firstNonBlank(p.Residence.Am, p.City.Am, p.Region.Am), firstNonBlank(p.Residence.En, p.City.En, p.Region.En)),
		BirthDate:       p.BirthDate,
	}
	switch {
	case p.Photo == "":
	case isImageDataURL(p.Photo):
		person.PhotoPath = p.Photo
	case b.photos != nil:
		if located, ok := b.photos.Locate(p.Photo); ok {
			person.PhotoPath = located
		}
	}
	return person
}

// display fills each language from the other when one side is blank.
func display(am, en string) domain.Bilingual {
	am = strings.TrimSpace(am)
	en = strings.TrimSpace(en)
	if am == "" {
		am = en
	}
	if en == "" {
		en = am
	}
	return domain.Bilingual{Am: am, En: en}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
