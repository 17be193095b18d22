package mailer

import (
	"bytes"
	"embed"
	"html"
	"html/template"
	"slices"
	"strings"

	"github.com/k3a/html2text"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// Template keys. Several notification kinds share one template.
const (
	TemplateSalesOpen      = "sales_open"
	TemplateEventReminder  = "event_reminder"
	TemplateWaitlistInvite = "waitlist_invite"
	TemplateEventCancelled = "event_cancelled"
	TemplateExportReady    = "export_ready"
	TemplateWeeklyDigest   = "weekly_category_digest"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownTemplate is returned when no template is registered for a key.
var ErrUnknownTemplate = errors.Newf("unknown template").
	Component("mailer").
	Category(errors.CategoryValidation).
	Build()

// DigestItem is one event listed in the weekly category digest.
type DigestItem struct {
	Title    string
	Category string
	Date     string
	Venue    string
	Link     string
}

// Rendered holds the output of one template execution.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Templates holds the parsed message templates by key. Each key is parsed
// together with the shared layout; its file defines "subject" and "content".
type Templates struct {
	byKey map[string]*template.Template
}

// TemplateKeys lists every known template key.
func TemplateKeys() []string {
	return []string{
		TemplateSalesOpen,
		TemplateEventReminder,
		TemplateWaitlistInvite,
		TemplateEventCancelled,
		TemplateExportReady,
		TemplateWeeklyDigest,
	}
}

// LoadTemplates parses all embedded templates.
func LoadTemplates() (*Templates, error) {
	t := &Templates{byKey: make(map[string]*template.Template)}
	for _, key := range TemplateKeys() {
		tmpl, err := template.New(key).
			Option("missingkey=error").
			ParseFS(templateFS, "templates/layout.html", "templates/"+key+".html")
		if err != nil {
			return nil, errors.New(err).
				Component("mailer").
				Category(errors.CategoryConfiguration).
				Context("template", key).
				Build()
		}
		t.byKey[key] = tmpl
	}
	return t, nil
}

// Has reports whether key is a known template.
func (t *Templates) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// Keys returns the loaded template keys in sorted order.
func (t *Templates) Keys() []string {
	keys := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Render executes the template for key. A parameter referenced by the
// template but absent from data is an error.
func (t *Templates) Render(key string, data map[string]any) (*Rendered, error) {
	tmpl, ok := t.byKey[key]
	if !ok {
		return nil, errors.New(ErrUnknownTemplate).
			Component("mailer").
			Category(errors.CategoryValidation).
			Context("template", key).
			Build()
	}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return nil, renderError(err, key, "subject")
	}
	if err := tmpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return nil, renderError(err, key, "body")
	}

	// The subject is executed in an HTML context; headers want plain text.
	subj := strings.Join(strings.Fields(html.UnescapeString(subject.String())), " ")

	return &Rendered{
		Subject: subj,
		HTML:    body.String(),
		Text:    html2text.HTML2TextWithOptions(body.String(), html2text.WithUnixLineBreaks()),
	}, nil
}

func renderError(err error, key, part string) error {
	return errors.New(err).
		Component("mailer").
		Category(errors.CategoryValidation).
		Context("operation", "render_"+part).
		Context("template", key).
		Build()
}
