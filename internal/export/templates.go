package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var dossierTemplate = template.Must(
	template.New("dossier.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04 MST") },
		"label":      func(s string) string { return strings.ReplaceAll(s, "_", " ") },
	}).ParseFS(templateFS, "templates/dossier.html"),
)

// TemplateData holds data for dossier template rendering
type TemplateData struct {
	OrganizationName string
	ComplaintID      int64
	Title            string
	DescriptionHTML  template.HTML
	Status           string
	Priority         string
	DepartmentName   string
	FileURL          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Responses        []TemplateResponse
}

// TemplateResponse holds one response entry for the template
type TemplateResponse struct {
	Author      string
	MessageHTML template.HTML
	FileURL     string
	CreatedAt   time.Time
}

// RenderDossierHTML renders the dossier template with provided data
func RenderDossierHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := dossierTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
