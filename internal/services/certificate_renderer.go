package services

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strconv"

	"golang.org/x/text/language"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
)

//go:embed templates/certificate.html.tmpl
var certificateTemplateSource string

// RenderAssets carries the inline images embedded into a certificate document. Photos is keyed
// by section ("child", "wife", "husband", "deceased").
type RenderAssets struct {
	QRCodeDataURL string
	Photos        map[string]string
}

// DocumentRenderer turns CertificateData into a self-contained HTML document.
type DocumentRenderer struct {
	tmpl *template.Template
}

// NewDocumentRenderer parses the embedded certificate layout.
func NewDocumentRenderer() (*DocumentRenderer, error) {
	tmpl, err := template.New("certificate").Parse(certificateTemplateSource)
	if err != nil {
		return nil, fmt.Errorf("parse certificate template: %w", err)
	}
	return &DocumentRenderer{tmpl: tmpl}, nil
}

// Render produces the certificate markup. Output depends only on data and assets.
func (r *DocumentRenderer) Render(data domain.CertificateData, assets RenderAssets) ([]byte, error) {
	view := buildDocumentView(data, assets)
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("execute certificate template: %w", err)
	}
	return buf.Bytes(), nil
}

type langView struct {
	Am string
	En string
}

var documentLang = langView{Am: language.Amharic.String(), En: language.English.String()}

type dateView struct {
	Field string
	Day   string
	Month domain.MonthName
	Year  string
	Slash string
}

type rowView struct {
	Field string
	Label domain.Bilingual
	Value domain.Bilingual
	Date  *dateView
}

type sectionView struct {
	Key       string
	Title     domain.Bilingual
	Rows      []rowView
	ShowPhoto bool
	Photo     template.URL
}

type documentView struct {
	Lang             langView
	Layout           string
	Title            domain.Bilingual
	Accent           template.CSS
	Data             domain.CertificateData
	Sections         []sectionView
	RegistrationDate dateView
	IssueDate        dateView
	QRCode           template.URL
}

type layoutStyle struct {
	title  domain.Bilingual
	accent template.CSS
}

var layoutStyles = map[string]layoutStyle{
	"birth":    {title: domain.Bilingual{Am: "የልደት ምስክር ወረቀት", En: "Certificate of Birth"}, accent: "#1f6f43"},
	"marriage": {title: domain.Bilingual{Am: "የጋብቻ ምስክር ወረቀት", En: "Certificate of Marriage"}, accent: "#8a1c4a"},
	"death":    {title: domain.Bilingual{Am: "የሞት ምስክር ወረቀት", En: "Certificate of Death"}, accent: "#2b2b2b"},
	"default":  {title: domain.Bilingual{Am: "የወሳኝ ኩነት ምስክር ወረቀት", En: "Vital Event Certificate"}, accent: "#1d4e89"},
}

func layoutFor(eventType domain.EventType) string {
	switch eventType {
	case domain.EventTypeBirth:
		return "birth"
	case domain.EventTypeMarriage:
		return "marriage"
	case domain.EventTypeDeath:
		return "death"
	}
	return "default"
}

func buildDocumentView(data domain.CertificateData, assets RenderAssets) documentView {
	layout := layoutFor(data.EventType)
	style := layoutStyles[layout]
	view := documentView{
		Lang:             documentLang,
		Layout:           layout,
		Title:            style.title,
		Accent:           style.accent,
		Data:             data,
		RegistrationDate: decomposeDate("registrationDate", domain.DatePartsFromTime(data.RegistrationDate)),
		IssueDate:        decomposeDate("issueDate", domain.DatePartsFromTime(data.IssueDate)),
		QRCode:           inlineImage(assets.QRCodeDataURL),
	}

	photo := func(key string) template.URL {
		return inlineImage(assets.Photos[key])
	}

	switch {
	case data.Birth != nil:
		b := data.Birth
		view.Sections = []sectionView{
			{
				Key:       "child",
				Title:     domain.Bilingual{Am: "የልጁ መረጃ", En: "Child"},
				Rows:      append(personRows("child", b.Child, true), placeRows(b)...),
				ShowPhoto: true,
				Photo:     photo("child"),
			},
			{Key: "father", Title: domain.Bilingual{Am: "የአባት መረጃ", En: "Father"}, Rows: parentRows("father", b.Father)},
			{Key: "mother", Title: domain.Bilingual{Am: "የእናት መረጃ", En: "Mother"}, Rows: parentRows("mother", b.Mother)},
		}
	case data.Marriage != nil:
		m := data.Marriage
		view.Sections = []sectionView{
			{Key: "wife", Title: domain.Bilingual{Am: "የሚስት መረጃ", En: "Wife"}, Rows: personRows("wife", m.Wife, true), ShowPhoto: true, Photo: photo("wife")},
			{Key: "husband", Title: domain.Bilingual{Am: "የባል መረጃ", En: "Husband"}, Rows: personRows("husband", m.Husband, true), ShowPhoto: true, Photo: photo("husband")},
			{
				Key:   "marriage",
				Title: domain.Bilingual{Am: "የጋብቻ መረጃ", En: "Marriage"},
				Rows: []rowView{
					dateRow("marriage.date", domain.Bilingual{Am: "ጋብቻው የተፈጸመበት ቀን", En: "Date of Marriage"}, m.MarriageDate),
					textRow("marriage.place", domain.Bilingual{Am: "ጋብቻው የተፈጸመበት ቦታ", En: "Place of Marriage"}, m.MarriagePlace),
					textRow("marriage.type", domain.Bilingual{Am: "የጋብቻው ዓይነት", En: "Type of Marriage"}, m.MarriageType),
				},
			},
		}
	case data.Death != nil:
		d := data.Death
		rows := personRows("deceased", d.Deceased, true)
		rows = append(rows,
			dateRow("deceased.deathDate", domain.Bilingual{Am: "የሞተበት ቀን", En: "Date of Death"}, d.DeathDate),
			textRow("deceased.deathPlace", domain.Bilingual{Am: "የሞተበት ቦታ", En: "Place of Death"}, d.DeathPlace),
			textRow("deceased.cause", domain.Bilingual{Am: "የሞት ምክንያት", En: "Cause of Death"}, d.Cause),
		)
		view.Sections = []sectionView{
			{Key: "deceased", Title: domain.Bilingual{Am: "የሟች መረጃ", En: "Deceased"}, Rows: rows, ShowPhoto: true, Photo: photo("deceased")},
		}
	}
	return view
}

func personRows(prefix string, p domain.CertificatePerson, withBirthDate bool) []rowView {
	rows := []rowView{
		textRow(prefix+".fullName", domain.Bilingual{Am: "ሙሉ ስም", En: "Full Name"}, p.FullName),
		textRow(prefix+".sex", domain.Bilingual{Am: "ጾታ", En: "Sex"}, p.Sex),
	}
	if withBirthDate {
		rows = append(rows, dateRow(prefix+".birthDate", domain.Bilingual{Am: "የትውልድ ቀን", En: "Date of Birth"}, p.BirthDate))
	}
	rows = append(rows,
		textRow(prefix+".nationality", domain.Bilingual{Am: "ዜግነት", En: "Nationality"}, p.Nationality),
		textRow(prefix+".residence", domain.Bilingual{Am: "የመኖሪያ አድራሻ", En: "Residence"}, p.Residence),
	)
	if p.IDNumber != "" {
		rows = append(rows, textRow(prefix+".idNumber", domain.Bilingual{Am: "የመታወቂያ ቁጥር", En: "ID Number"}, domain.Bilingual{Am: p.IDNumber, En: p.IDNumber}))
	}
	return rows
}

func parentRows(prefix string, p domain.CertificatePerson) []rowView {
	return []rowView{
		textRow(prefix+".fullName", domain.Bilingual{Am: "ሙሉ ስም", En: "Full Name"}, p.FullName),
		textRow(prefix+".nationality", domain.Bilingual{Am: "ዜግነት", En: "Nationality"}, p.Nationality),
		textRow(prefix+".religion", domain.Bilingual{Am: "ሃይማኖት", En: "Religion"}, p.Religion),
	}
}

func placeRows(b *domain.BirthDetails) []rowView {
	return []rowView{
		textRow("child.placeOfBirth", domain.Bilingual{Am: "የትውልድ ቦታ", En: "Place of Birth"}, b.PlaceOfBirth),
		textRow("child.region", domain.Bilingual{Am: "ክልል", En: "Region"}, b.Region),
		textRow("child.zone", domain.Bilingual{Am: "ዞን", En: "Zone"}, b.Zone),
		textRow("child.woreda", domain.Bilingual{Am: "ወረዳ", En: "Woreda"}, b.Woreda),
		textRow("child.kebele", domain.Bilingual{Am: "ቀበሌ", En: "Kebele"}, b.Kebele),
	}
}

func textRow(field string, label, value domain.Bilingual) rowView {
	return rowView{Field: field, Label: label, Value: value}
}

func dateRow(field string, label domain.Bilingual, parts domain.DateParts) rowView {
	date := decomposeDate(field, parts)
	return rowView{Field: field, Label: label, Date: &date}
}

// decomposeDate splits parts into day, Ethiopian month name and year sub-fields. Unknown
// components render blank.
func decomposeDate(field string, parts domain.DateParts) dateView {
	view := dateView{Field: field, Slash: parts.Slash()}
	if parts.Day > 0 {
		view.Day = strconv.Itoa(parts.Day)
	}
	if parts.Year > 0 {
		view.Year = strconv.Itoa(parts.Year)
	}
	if month, ok := domain.EthiopianMonthName(parts.Month); ok {
		view.Month = month
	}
	return view
}

// inlineImage admits only validated image data URLs into src attributes.
func inlineImage(value string) template.URL {
	if !isImageDataURL(value) {
		return ""
	}
	return template.URL(value)
}
