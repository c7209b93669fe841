// Package notify renders and delivers templated emails.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// TemplateStudentWelcome is sent after enrollment.  Vars: firstName,
// lastName, email, batchName, temporaryPassword, passwordExpiry.
const TemplateStudentWelcome = "student_welcome"

// Message is a templated email.
type Message struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars"`
}

// Sender delivers a message.  Implementations must not log Vars, which can
// hold credentials.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]emailTemplate{
	TemplateStudentWelcome: {
		subject: template.Must(template.New("subject").Parse(`Welcome to {{.batchName}}`)),
		body: template.Must(template.New("body").Option("missingkey=error").Parse(`Hello {{.firstName}},

You have been enrolled in {{.batchName}}.

Sign in with:
  Username: {{.email}}
  Temporary password: {{.temporaryPassword}}

The temporary password expires on {{.passwordExpiry}}. You will be asked
to choose a new password when you first sign in.
`)),
	},
}

// Render produces the subject and body of msg.
func Render(msg Message) (subject, body string, err error) {
	tpl, ok := templates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", msg.Template)
	}
	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, msg.Vars); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", msg.Template, err)
	}
	if err := tpl.body.Execute(&bb, msg.Vars); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", msg.Template, err)
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}
