package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var (
	//go:embed alert.html
	alertHTML     string
	alertTemplate = template.Must(template.New("alert.html").Parse(alertHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

// AbandonedCascadeFormat reports a cascade delete chunk that reconciliation gave up on.
type AbandonedCascadeFormat struct {
	RecordID    string
	AppID       string
	ArtifactIDs [][]string
	UserIDs     []string
	Attempts    int
	LastError   string
	Since       time.Time
}

func (ef *AbandonedCascadeFormat) Subject() string {
	return fmt.Sprintf("Substore: cascade delete abandoned for app %s", ef.AppID)
}

func (ef *AbandonedCascadeFormat) Body() string {
	return mustFillTemplate(alertTemplate, ef)
}
