package utils

import (
	"strings"

	"mailsprint/models"
)

// MergeTemplate substitutes contact placeholders like {{Name}}, {{Company}}
// and {{Email}} into a step template. Both {{Name}} and {{ Name }} spellings
// are accepted. Unresolved placeholders are left verbatim.
func MergeTemplate(template string, contact *models.Contact) string {
	firstName := ""
	if contact.Name != "" {
		firstName = strings.Fields(contact.Name)[0]
	}

	placeholders := map[string]string{
		"Name":       contact.Name,
		"Company":    contact.Company,
		"Email":      contact.Email,
		"First Name": firstName,
	}

	merged := template
	for key, value := range placeholders {
		merged = strings.ReplaceAll(merged, "{{"+key+"}}", value)
		merged = strings.ReplaceAll(merged, "{{ "+key+" }}", value)
	}
	return merged
}

// PlainTextToHTML converts a plain text body into minimal HTML so that
// tracking can be injected into text-only steps.
func PlainTextToHTML(body string) string {
	return strings.ReplaceAll(body, "\n", "<br>\n")
}
