package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message kinds.
const (
	KindProvisioning  = "provisioning"
	KindPasswordReset = "password_reset"
)

var layout = template.Must(template.New("mail").Parse(`
{{define "provisioning"}}<div style="font-family:Arial,sans-serif;max-width:560px">
<h2>{{.Brand}}</h2>
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>An administrator has created an account for you. Use the button below to set your password:</p>
<p style="margin:24px 0"><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 16px;border-radius:6px;text-decoration:none">Set password</a></p>
<p>If the button does not work, copy this link into your browser:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<hr/>
<p style="color:#666;font-size:12px">This email was sent automatically. Contact your administrator if you need help.</p>
</div>{{end}}
{{define "password_reset"}}<div style="font-family:Arial,sans-serif;max-width:560px">
<h2>{{.Brand}}</h2>
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>We received a request to reset your password. The link expires soon and can be used once:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p style="color:#666;font-size:12px">If you did not ask for this, ignore this email.</p>
</div>{{end}}`))

type templateData struct {
	Brand string
	Name  string
	Link  string
}

// Provisioning renders the "account created, set your password" email.
func Provisioning(brand, from, to, name, link string) (Message, error) {
	return render(KindProvisioning, fmt.Sprintf("%s: Set up the password for your account", brand), brand, from, to, name, link)
}

// PasswordReset renders the self-service password reset email.
func PasswordReset(brand, from, to, name, link string) (Message, error) {
	return render(KindPasswordReset, fmt.Sprintf("%s: Reset your password", brand), brand, from, to, name, link)
}

func render(kind, subject, brand, from, to, name, link string) (Message, error) {
	var buf bytes.Buffer
	if err := layout.ExecuteTemplate(&buf, kind, templateData{Brand: brand, Name: name, Link: link}); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	return Message{
		To:      to,
		From:    from,
		Subject: subject,
		HTML:    buf.String(),
		Text:    fmt.Sprintf("%s\n\nOpen this link to continue: %s\n", subject, link),
		Kind:    kind,
	}, nil
}
