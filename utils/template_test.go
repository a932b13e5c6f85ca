package utils

import (
	"testing"

	"mailsprint/models"
)

func TestMergeTemplate(t *testing.T) {
	contact := &models.Contact{
		Name:    "Jane Prospect",
		Email:   "jane@prospect.example",
		Company: "Prospect Inc",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "all placeholders",
			template: "Hi {{Name}} at {{Company}} ({{Email}})",
			want:     "Hi Jane Prospect at Prospect Inc (jane@prospect.example)",
		},
		{
			name:     "spaced placeholders",
			template: "Hi {{ Name }} from {{ Company }}",
			want:     "Hi Jane Prospect from Prospect Inc",
		},
		{
			name:     "first name",
			template: "Hey {{First Name}},",
			want:     "Hey Jane,",
		},
		{
			name:     "unresolved placeholder left verbatim",
			template: "Your score: {{Score}}",
			want:     "Your score: {{Score}}",
		},
		{
			name:     "no placeholders",
			template: "Plain text body",
			want:     "Plain text body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeTemplate(tt.template, contact); got != tt.want {
				t.Errorf("MergeTemplate(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestMergeTemplateEmptyContactFields(t *testing.T) {
	contact := &models.Contact{Email: "someone@example.com"}

	got := MergeTemplate("Hi {{Name}} from {{Company}}", contact)
	if got != "Hi  from " {
		t.Errorf("expected empty substitutions, got %q", got)
	}
}

func TestPlainTextToHTML(t *testing.T) {
	got := PlainTextToHTML("line one\nline two")
	want := "line one<br>\nline two"
	if got != want {
		t.Errorf("PlainTextToHTML = %q, want %q", got, want)
	}
}
