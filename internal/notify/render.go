package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(env Env, t time.Time) string { return env.formatDate(t) },
}).ParseFS(templateFiles, "templates/*.html"))

// Env is the rendering context shared by every notification.
type Env struct {
	ServerURL        string
	SupportEmailAddr string
	Location         *time.Location
	DateFormat       string
}

func (e Env) formatDate(t time.Time) string {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := e.DateFormat
	if layout == "" {
		layout = "02 January 2006"
	}
	return t.In(loc).Format(layout)
}

// Render produces the subject and HTML body for an action.
func Render(a Action, env Env) (subject, body string, err error) {
	var name string
	switch v := a.(type) {
	case FutureEngagementWarning:
		name = "future_engagement_warning.html"
		subject = "Planned engagement needs your attention: " + env.formatDate(v.EngagementDate)
	case AccountDeactivationWarning:
		name = "account_deactivation_warning.html"
		subject = "Your account will be deactivated on " + env.formatDate(v.EndOfTourDate)
	case AccountDeactivation:
		name = "account_deactivation.html"
		subject = "Your account has been deactivated"
	default:
		return "", "", fmt.Errorf("render %T: %w", a, ErrUnknownKind)
	}

	var buf bytes.Buffer
	data := struct {
		Env    Env
		Action Action
	}{Env: env, Action: a}
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", a.Kind(), err)
	}
	return subject, buf.String(), nil
}
