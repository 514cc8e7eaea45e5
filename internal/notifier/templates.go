package notifier

import (
	"bytes"
	"embed"
	"strings"
	"text/template"
	"time"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds the parsed notification body templates.
type Templates struct {
	native *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Message     string
	Tags        []string
	Source      string
	Time        string
	ShowDetails bool
}

// LoadTemplates loads the embedded templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"join":  strings.Join,
	}

	native, err := template.New("native.txt").Funcs(funcs).ParseFS(templateFS, "templates/native.txt")
	if err != nil {
		return nil, err
	}
	return &Templates{native: native}, nil
}

// RenderNative renders the native notification body.
func (t *Templates) RenderNative(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.native.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// EventToTemplateData converts an event to template data.
func EventToTemplateData(ev models.ProcessedEvent, showDetails bool) TemplateData {
	return TemplateData{
		Message:     ev.Message,
		Tags:        ev.Tags,
		Source:      ev.Source,
		Time:        time.UnixMilli(ev.Timestamp).Format("2006-01-02 15:04:05 MST"),
		ShowDetails: showDetails,
	}
}
