// Package templates renders the transactional email bodies.
package templates

import (
	"bytes"
	"html/template"
)

// EmailLayoutProps fills the shared email shell.
type EmailLayoutProps struct {
	Preheader  string
	Content    template.HTML
	FooterText string
	SiteURL    string
}

var emailLayoutTemplate = template.Must(template.New("emailLayout").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.4; background-color: #f4f5f6; margin: 0; padding: 0;">
    <span style="display: none; max-height: 0; overflow: hidden;">{{.Preheader}}</span>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" width="100%" style="background-color: #f4f5f6;">
      <tr>
        <td align="center" style="padding: 24px;">
          <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="max-width: 600px; width: 100%; background: #ffffff; border: 1px solid #eaebed; border-radius: 16px;">
            <tr><td style="padding: 24px;">{{.Content}}</td></tr>
          </table>
          <p style="color: #9a9ea6; font-size: 14px; margin-top: 16px;">{{.FooterText}}{{if .SiteURL}} <a href="{{.SiteURL}}" style="color: #9a9ea6;">{{.SiteURL}}</a>{{end}}</p>
        </td>
      </tr>
    </table>
  </body>
</html>`))

// GetEmailLayout wraps content in the shared shell.
func GetEmailLayout(props EmailLayoutProps) (string, error) {
	var buf bytes.Buffer
	if err := emailLayoutTemplate.Execute(&buf, props); err != nil {
		return "", err
	}
	return buf.String(), nil
}
