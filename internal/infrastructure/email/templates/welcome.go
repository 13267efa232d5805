package templates

import (
	"bytes"
	"html/template"
)

// WelcomeEmailProps fills the welcome email sent after the first email submission.
type WelcomeEmailProps struct {
	LibraryURL      string
	BrokerThreshold int
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(`
<p style="margin: 0 0 16px;">Thanks for joining the drill library.</p>
<p style="margin: 0 0 16px;">You can now open {{.BrokerThreshold}} more drills. Verify a broker account any time to unlock the full library.</p>
<table role="presentation" border="0" cellpadding="0" cellspacing="0">
  <tr>
    <td style="border-radius: 4px; background-color: #0867ec;" bgcolor="#0867ec">
      <a href="{{.LibraryURL}}" target="_blank" style="display: inline-block; padding: 12px 24px; color: #ffffff; font-weight: bold; text-decoration: none;">Continue practicing</a>
    </td>
  </tr>
</table>`))

// GetWelcomeEmailContent renders the welcome email body.
func GetWelcomeEmailContent(props WelcomeEmailProps) (template.HTML, error) {
	var buf bytes.Buffer
	if err := welcomeTemplate.Execute(&buf, props); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
