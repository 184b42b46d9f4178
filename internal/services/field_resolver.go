package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	"github.com/Yonad91/vital-events-sub002/internal/platform/textutil"
)

// Person prefixes used by event records and forms.
const (
	PersonChild    = "child"
	PersonFather   = "father"
	PersonMother   = "mother"
	PersonWife     = "wife"
	PersonHusband  = "husband"
	PersonDeceased = "deceased"
)

// Divorce form slots.
const (
	SpouseSlot1 = "spouse1"
	SpouseSlot2 = "spouse2"
)

// PersonProjection is the canonical view of one person referenced by an event record.
type PersonProjection struct {
	IDNumber        string
	FullNameAm      string
	FullNameEn      string
	GivenName       domain.Bilingual
	FatherName      domain.Bilingual
	GrandfatherName domain.Bilingual
	BirthDate       domain.DateParts
	Sex             domain.Bilingual
	Religion        domain.Bilingual
	Nationality     domain.Bilingual
	Ethnicity       domain.Bilingual
	Region          domain.Bilingual
	Zone            domain.Bilingual
	Woreda          domain.Bilingual
	Kebele          domain.Bilingual
	City            domain.Bilingual
	SubCity         domain.Bilingual
	Residence       domain.Bilingual
	Photo           string
}

// IsEmpty reports whether the projection names nobody. Empty projections never populate a form
// or certificate.
func (p PersonProjection) IsEmpty() bool {
	return p.FullNameAm == "" && p.FullNameEn == ""
}

// FullNameParts holds the positional tokens of a full name. Missing positions are empty.
type FullNameParts struct {
	Given       string
	Father      string
	Grandfather string
}

// personAliases lists, per logical field, the record keys consulted in precedence order. "{p}"
// stands for the person prefix. For name parts the first key is the explicit field; the token
// split from the full name is consulted before the remaining aliases.
var personAliases = map[string][]string{
	"idNumber":          {"{p}IdNumberAm", "{p}IdNumberEn", "{p}IdNumber", "{p}NationalIdAm", "{p}NationalId"},
	"fullNameAm":        {"{p}FullNameAm", "{p}FullName", "{p}NameFullAm"},
	"fullNameEn":        {"{p}FullNameEn", "{p}NameFullEn"},
	"givenNameAm":       {"{p}NameAm", "{p}FirstNameAm", "{p}GivenNameAm", "{p}Name", "{p}FirstName"},
	"givenNameEn":       {"{p}NameEn", "{p}FirstNameEn", "{p}GivenNameEn"},
	"fatherNameAm":      {"{p}FatherNameAm", "{p}MiddleNameAm", "{p}FatherName", "{p}MiddleName"},
	"fatherNameEn":      {"{p}FatherNameEn", "{p}MiddleNameEn"},
	"grandfatherNameAm": {"{p}GrandfatherNameAm", "{p}LastNameAm", "{p}GrandfatherName", "{p}LastName"},
	"grandfatherNameEn": {"{p}GrandfatherNameEn", "{p}LastNameEn"},
	"birthDate":         {"{p}BirthDate", "{p}DateOfBirth", "{p}Dob"},
	"sexAm":             {"{p}SexAm", "{p}GenderAm", "{p}Sex", "{p}Gender"},
	"sexEn":             {"{p}SexEn", "{p}GenderEn"},
	"photo":             {"{p}Photo", "{p}PhotoUrl", "{p}Image", "{p}Picture"},
}

// bilingualPersonFields are resolved as {p}<Field>Am, {p}<Field> and {p}<Field>En.
var bilingualPersonFields = []string{
	"Religion", "Nationality", "Ethnicity", "Region", "Zone", "Woreda", "Kebele", "City", "SubCity", "Residence",
}

// SplitFullName splits a full name on whitespace runs into given, father and grandfather names.
func SplitFullName(fullName string) FullNameParts {
	tokens := textutil.Fields(fullName)
	var parts FullNameParts
	if len(tokens) > 0 {
		parts.Given = tokens[0]
	}
	if len(tokens) > 1 {
		parts.Father = tokens[1]
	}
	if len(tokens) > 2 {
		parts.Grandfather = tokens[2]
	}
	return parts
}

// ResolvePerson projects the person stored under prefix in a sparse event record.
func ResolvePerson(data map[string]any, prefix string) PersonProjection {
	r := personReader{data: data, prefix: prefix}

	fullAm := r.first("fullNameAm")
	fullEn := r.first("fullNameEn")
	splitAm := SplitFullName(fullAm)
	splitEn := SplitFullName(fullEn)

	p := PersonProjection{
		IDNumber: r.first("idNumber"),
		GivenName: domain.Bilingual{
			Am: r.namePart("givenNameAm", splitAm.Given),
			En: r.namePart("givenNameEn", splitEn.Given),
		},
		FatherName: domain.Bilingual{
			Am: r.namePart("fatherNameAm", splitAm.Father),
			En: r.namePart("fatherNameEn", splitEn.Father),
		},
		GrandfatherName: domain.Bilingual{
			Am: r.namePart("grandfatherNameAm", splitAm.Grandfather),
			En: r.namePart("grandfatherNameEn", splitEn.Grandfather),
		},
		BirthDate: r.date("birthDate"),
		Sex:       domain.Bilingual{Am: r.first("sexAm"), En: r.first("sexEn")},
		Photo:     r.first("photo"),
	}

	if fullAm == "" {
		fullAm = joinNonEmpty(r.first("givenNameAm"), r.first("fatherNameAm"), r.first("grandfatherNameAm"))
	}
	if fullEn == "" {
		fullEn = joinNonEmpty(r.first("givenNameEn"), r.first("fatherNameEn"), r.first("grandfatherNameEn"))
	}
	p.FullNameAm = fullAm
	p.FullNameEn = fullEn

	for _, field := range bilingualPersonFields {
		value := domain.Bilingual{
			Am: r.firstOf(prefix+field+"Am", prefix+field),
			En: r.firstOf(prefix + field + "En"),
		}
		switch field {
		case "Religion":
			p.Religion = value
		case "Nationality":
			p.Nationality = value
		case "Ethnicity":
			p.Ethnicity = value
		case "Region":
			p.Region = value
		case "Zone":
			p.Zone = value
		case "Woreda":
			p.Woreda = value
		case "Kebele":
			p.Kebele = value
		case "City":
			p.City = value
		case "SubCity":
			p.SubCity = value
		case "Residence":
			p.Residence = value
		}
	}
	return p
}

type personReader struct {
	data   map[string]any
	prefix string
}

func (r personReader) keys(field string) []string {
	aliases := personAliases[field]
	keys := make([]string, len(aliases))
	for i, alias := range aliases {
		keys[i] = strings.ReplaceAll(alias, "{p}", r.prefix)
	}
	return keys
}

func (r personReader) first(field string) string {
	return r.firstOf(r.keys(field)...)
}

func (r personReader) firstOf(keys ...string) string {
	return lookupString(r.data, keys...)
}

func (r personReader) namePart(field string, token string) string {
	keys := r.keys(field)
	if len(keys) == 0 {
		return token
	}
	if v := lookupString(r.data, keys[0]); v != "" {
		return v
	}
	if token != "" {
		return token
	}
	return lookupString(r.data, keys[1:]...)
}

func (r personReader) date(field string) domain.DateParts {
	return lookupDate(r.data, r.keys(field)...)
}

// IsEmpty reports whether a record or form value carries no information: nil, a blank string,
// or a date whose components are all zero.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case domain.DateParts:
		return v.IsZero()
	case *domain.DateParts:
		return v == nil || v.IsZero()
	case map[string]any:
		if len(v) == 0 {
			return true
		}
		if isDateMap(v) {
			parts, _ := domain.ParseDateParts(v)
			return parts.IsZero()
		}
		return false
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

func isDateMap(v map[string]any) bool {
	for _, key := range []string{"year", "month", "day"} {
		if _, ok := v[key]; ok {
			return true
		}
	}
	return false
}

// BuildPatch keeps only the candidate entries whose value is non-empty. String values are trimmed.
func BuildPatch(candidates map[string]any) map[string]any {
	patch := make(map[string]any, len(candidates))
	for key, value := range candidates {
		if IsEmpty(value) {
			continue
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		patch[key] = value
	}
	return patch
}

// MergePrefill applies patch to a copy of state, filling only keys whose current value is empty.
func MergePrefill(state map[string]any, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(state)+len(patch))
	for key, value := range state {
		merged[key] = value
	}
	for key, value := range patch {
		if IsEmpty(value) {
			continue
		}
		if current, ok := merged[key]; ok && !IsEmpty(current) {
			continue
		}
		merged[key] = value
	}
	return merged
}

// PersonPatch maps a projection onto the form keys of target.
func PersonPatch(target string, p PersonProjection) map[string]any {
	return BuildPatch(map[string]any{
		target + "IdNumberAm":        p.IDNumber,
		target + "FullNameAm":        p.FullNameAm,
		target + "FullNameEn":        p.FullNameEn,
		target + "NameAm":            p.GivenName.Am,
		target + "NameEn":            p.GivenName.En,
		target + "FatherNameAm":      p.FatherName.Am,
		target + "FatherNameEn":      p.FatherName.En,
		target + "GrandfatherNameAm": p.GrandfatherName.Am,
		target + "GrandfatherNameEn": p.GrandfatherName.En,
		target + "BirthDate":         p.BirthDate,
		target + "SexAm":             p.Sex.Am,
		target + "SexEn":             p.Sex.En,
		target + "ReligionAm":        p.Religion.Am,
		target + "ReligionEn":        p.Religion.En,
		target + "NationalityAm":     p.Nationality.Am,
		target + "NationalityEn":     p.Nationality.En,
		target + "EthnicityAm":       p.Ethnicity.Am,
		target + "EthnicityEn":       p.Ethnicity.En,
		target + "RegionAm":          p.Region.Am,
		target + "ZoneAm":            p.Zone.Am,
		target + "WoredaAm":          p.Woreda.Am,
		target + "KebeleAm":          p.Kebele.Am,
		target + "CityAm":            p.City.Am,
		target + "SubCityAm":         p.SubCity.Am,
		target + "ResidenceAm":       p.Residence.Am,
		target + "ResidenceEn":       p.Residence.En,
		target + "Photo":             p.Photo,
	})
}

// MatchMarriageParty finds which party of a marriage record holds idNumber. Comparison is
// case-insensitive and ignores surrounding whitespace.
func MatchMarriageParty(data map[string]any, idNumber string) (string, PersonProjection, bool) {
	if textutil.Fold(idNumber) == "" {
		return "", PersonProjection{}, false
	}
	for _, role := range []string{PersonWife, PersonHusband} {
		r := personReader{data: data, prefix: role}
		for _, key := range r.keys("idNumber") {
			if textutil.EqualFold(lookupString(data, key), idNumber) {
				return role, ResolvePerson(data, role), true
			}
		}
	}
	return "", PersonProjection{}, false
}

// DeathPrefillFromMarriage fills the deceased section from the marriage party holding idNumber.
// An unmatched id yields an empty result without error.
func DeathPrefillFromMarriage(event domain.Event, idNumber string) AutofillResult {
	role, person, ok := MatchMarriageParty(event.Data, idNumber)
	if !ok || person.IsEmpty() {
		return emptyAutofill()
	}
	if person.Sex.IsEmpty() {
		person.Sex = roleSex[role]
	}
	patch := PersonPatch(PersonDeceased, person)
	spouse := ResolvePerson(event.Data, oppositeRole(role))
	for key, value := range BuildPatch(map[string]any{
		"deceasedSpouseFullNameAm": spouse.FullNameAm,
		"deceasedSpouseFullNameEn": spouse.FullNameEn,
		"deceasedMaritalStatusAm":  "ያገባ",
		"deceasedMaritalStatusEn":  "Married",
	}) {
		patch[key] = value
	}
	return AutofillResult{ShouldAutofill: true, Role: role, Patch: patch}
}

// DeathPrefillFromBirth fills the deceased section from the child of a birth record.
func DeathPrefillFromBirth(event domain.Event) AutofillResult {
	child := ResolvePerson(event.Data, PersonChild)
	if child.IsEmpty() {
		return emptyAutofill()
	}
	patch := PersonPatch(PersonDeceased, child)
	father := ResolvePerson(event.Data, PersonFather)
	mother := ResolvePerson(event.Data, PersonMother)
	for key, value := range BuildPatch(map[string]any{
		"deceasedFatherFullNameAm": father.FullNameAm,
		"deceasedFatherFullNameEn": father.FullNameEn,
		"deceasedMotherFullNameAm": mother.FullNameAm,
		"deceasedMotherFullNameEn": mother.FullNameEn,
		"deceasedPlaceOfBirthAm":   lookupString(event.Data, "childPlaceOfBirthAm", "placeOfBirthAm", "birthPlaceAm"),
	}) {
		patch[key] = value
	}
	return AutofillResult{ShouldAutofill: true, Role: PersonChild, Patch: patch}
}

// MarriagePrefillFromBirth fills the wife or husband section from the child of a birth record.
// A child whose recorded sex contradicts role is rejected.
func MarriagePrefillFromBirth(event domain.Event, role string) AutofillResult {
	if role != PersonWife && role != PersonHusband {
		return AutofillResult{Error: fmt.Sprintf("unknown marriage party %q", role), Patch: map[string]any{}}
	}
	child := ResolvePerson(event.Data, PersonChild)
	if child.IsEmpty() {
		return emptyAutofill()
	}
	if sex := normalizeSex(child.Sex); sex != "" && sex != roleSex[role].En {
		return AutofillResult{
			Error: fmt.Sprintf("the birth record lists this person as %s and cannot fill the %s section", strings.ToLower(sex), role),
			Role:  role,
			Patch: map[string]any{},
		}
	}
	return AutofillResult{ShouldAutofill: true, Role: role, Patch: PersonPatch(role, child)}
}

// DivorcePrefillFromMarriage fills spouse slot of a divorce form from the marriage party holding
// idNumber. When both slots come from the same marriage they must hold opposite roles, and a slot
// already filled from that marriage keeps its role.
func DivorcePrefillFromMarriage(event domain.Event, idNumber string, slot string, form map[string]any) AutofillResult {
	self, other, ok := divorceSlotPrefixes(slot)
	if !ok {
		return AutofillResult{Error: fmt.Sprintf("unknown spouse slot %q", slot), Patch: map[string]any{}}
	}
	role, person, ok := MatchMarriageParty(event.Data, idNumber)
	if !ok || person.IsEmpty() {
		return emptyAutofill()
	}

	if textutil.EqualFold(lookupString(form, other+"SourceMarriageId"), event.ID) {
		if lookupString(form, other+"SourceRole") == role {
			return divorceConflict(role, fmt.Sprintf(
				"the other spouse was already filled as the %s of this marriage; this spouse must be the %s",
				role, oppositeRole(role)))
		}
	}
	if otherID := lookupString(form, other+"IdNumberAm", other+"IdNumberEn"); otherID != "" && textutil.EqualFold(otherID, person.IDNumber) {
		return divorceConflict(role, "both spouses cannot be the same person")
	}
	if textutil.EqualFold(lookupString(form, self+"SourceMarriageId"), event.ID) {
		if current := lookupString(form, self+"SourceRole"); current != "" && current != role {
			return divorceConflict(role, fmt.Sprintf(
				"this spouse was already filled as the %s of this marriage and cannot be changed to the %s",
				current, role))
		}
	}

	if person.Sex.IsEmpty() {
		person.Sex = roleSex[role]
	}
	patch := PersonPatch(self, person)
	patch[self+"SourceMarriageId"] = event.ID
	patch[self+"SourceRole"] = role
	for key, value := range BuildPatch(map[string]any{
		"divorceMarriageDate":           lookupDate(event.Data, "marriageDate", "dateOfMarriage"),
		"divorceMarriagePlaceAm":        lookupString(event.Data, "marriagePlaceAm", "marriagePlace", "placeOfMarriageAm"),
		"divorceMarriageRegistrationId": event.RegistrationID,
	}) {
		patch[key] = value
	}
	return AutofillResult{ShouldAutofill: true, Role: role, Patch: patch}
}

func divorceSlotPrefixes(slot string) (string, string, bool) {
	switch strings.ToLower(strings.TrimSpace(slot)) {
	case SpouseSlot1:
		return "divorceSpouse1", "divorceSpouse2", true
	case SpouseSlot2:
		return "divorceSpouse2", "divorceSpouse1", true
	}
	return "", "", false
}

func divorceConflict(role string, message string) AutofillResult {
	return AutofillResult{ShouldAutofill: false, Error: message, Role: role, Patch: map[string]any{}}
}

func emptyAutofill() AutofillResult {
	return AutofillResult{Patch: map[string]any{}}
}

var roleSex = map[string]domain.Bilingual{
	PersonWife:    {Am: "ሴት", En: "Female"},
	PersonHusband: {Am: "ወንድ", En: "Male"},
}

func oppositeRole(role string) string {
	if role == PersonWife {
		return PersonHusband
	}
	return PersonWife
}

// normalizeSex returns "Female", "Male" or "" for the recorded sex.
func normalizeSex(sex domain.Bilingual) string {
	for _, value := range []string{sex.En, sex.Am} {
		switch textutil.Fold(value) {
		case "female", "f", "woman", "ሴት":
			return "Female"
		case "male", "m", "man", "ወንድ":
			return "Male"
		}
	}
	return ""
}

// lookupString returns the first non-empty string-like value stored under keys.
func lookupString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(data[key]); s != "" {
			return s
		}
	}
	return ""
}

// lookupDate returns the first non-zero date stored under keys.
func lookupDate(data map[string]any, keys ...string) domain.DateParts {
	for _, key := range keys {
		if parts, ok := domain.ParseDateParts(data[key]); ok && !parts.IsZero() {
			return parts
		}
	}
	return domain.DateParts{}
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func joinNonEmpty(values ...string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}
