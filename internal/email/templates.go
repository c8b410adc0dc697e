package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var followUpTemplate = template.Must(template.ParseFS(templateFS, "templates/followup.html"))

type followUpEmailData struct {
	Subject    string
	Paragraphs []string
	SenderName string
}

// renderFollowUp turns a plain text body into the HTML alternative. Blank
// lines separate paragraphs.
func renderFollowUp(subject, body, senderName string) (string, error) {
	data := followUpEmailData{Subject: subject, SenderName: senderName}
	for _, part := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p := strings.TrimSpace(part); p != "" {
			data.Paragraphs = append(data.Paragraphs, p)
		}
	}

	var buf bytes.Buffer
	if err := followUpTemplate.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute follow-up template: %w", err)
	}
	return buf.String(), nil
}
