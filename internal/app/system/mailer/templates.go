// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

// notePolicy strips all markup from user-supplied notes before they enter
// an email body. Notes are free text typed by senders and recipients.
var notePolicy = bluemonday.StrictPolicy()

// SanitizeNote removes any markup from a free-text note.
func SanitizeNote(note string) string {
	return notePolicy.Sanitize(note)
}

// AssignedSenderData holds data for the email telling a sender who they drew.
type AssignedSenderData struct {
	SiteName      string
	SenderName    string
	RecipientName string
	ExchangeName  string
	BaseURL       string
}

// BuildAssignedSenderEmail tells the sender who to send a gift to.
func BuildAssignedSenderEmail(data AssignedSenderData) Email {
	text := fmt.Sprintf("Hi %s,\n\n", data.SenderName)
	text += fmt.Sprintf("The draw for %s has happened, and you drew %s!\n\n", data.ExchangeName, data.RecipientName)
	text += fmt.Sprintf("Sign in at %s to see their postal address, and remember to mark your gift as sent once it's in the mail.\n", data.BaseURL)

	return Email{
		Subject:  fmt.Sprintf("%s: you've drawn someone to send mail to", data.SiteName),
		TextBody: text,
		HTMLBody: renderHTML(data.SiteName, "The draw has happened!",
			fmt.Sprintf("You drew <strong>%s</strong> for %s.", template.HTMLEscapeString(data.RecipientName), template.HTMLEscapeString(data.ExchangeName)),
			fmt.Sprintf("Sign in at %s to see their postal address.", template.HTMLEscapeString(data.BaseURL))),
	}
}

// AssignedRecipientData holds data for the email telling a recipient that
// someone drew them. The sender's identity is deliberately absent.
type AssignedRecipientData struct {
	SiteName      string
	RecipientName string
	ExchangeName  string
}

// BuildAssignedRecipientEmail tells a recipient mail is coming without
// revealing who is sending it.
func BuildAssignedRecipientEmail(data AssignedRecipientData) Email {
	text := fmt.Sprintf("Hi %s,\n\n", data.RecipientName)
	text += fmt.Sprintf("The draw for %s has happened, and someone out there has been assigned to send you mail.\n\n", data.ExchangeName)
	text += "Who? That would be telling. Keep an eye on your letterbox.\n"

	return Email{
		Subject:  fmt.Sprintf("%s: someone is sending you mail", data.SiteName),
		TextBody: text,
		HTMLBody: renderHTML(data.SiteName, "Someone drew you!",
			fmt.Sprintf("The draw for %s has happened, and someone has been assigned to send you mail.", template.HTMLEscapeString(data.ExchangeName)),
			"Who? That would be telling. Keep an eye on your letterbox."),
	}
}

// MailSentData holds data for the email telling a recipient their gift is
// on the way. Note is sanitized before rendering.
type MailSentData struct {
	SiteName      string
	RecipientName string
	ExchangeName  string
	Note          string
}

// BuildMailSentEmail tells the recipient their sender has posted the gift.
func BuildMailSentEmail(data MailSentData) Email {
	note := SanitizeNote(data.Note)

	text := fmt.Sprintf("Hi %s,\n\n", data.RecipientName)
	text += fmt.Sprintf("Your %s mail is on its way!\n", data.ExchangeName)
	if note != "" {
		text += fmt.Sprintf("\nYour sender says:\n\n%s\n", note)
	}

	body := fmt.Sprintf("Your %s mail is on its way!", template.HTMLEscapeString(data.ExchangeName))
	detail := ""
	if note != "" {
		detail = fmt.Sprintf("Your sender says: %q", template.HTMLEscapeString(note))
	}
	return Email{
		Subject:  fmt.Sprintf("%s: your mail is on its way", data.SiteName),
		TextBody: text,
		HTMLBody: renderHTML(data.SiteName, "Mail is coming", body, detail),
	}
}

// MailReceivedData holds data for the email telling a sender their gift
// arrived. Note is sanitized before rendering.
type MailReceivedData struct {
	SiteName     string
	SenderName   string
	ExchangeName string
	Note         string
}

// BuildMailReceivedEmail tells the sender their gift was received.
func BuildMailReceivedEmail(data MailReceivedData) Email {
	note := SanitizeNote(data.Note)

	text := fmt.Sprintf("Hi %s,\n\n", data.SenderName)
	text += fmt.Sprintf("Good news: the mail you sent for %s arrived.\n", data.ExchangeName)
	if note != "" {
		text += fmt.Sprintf("\nYour recipient says:\n\n%s\n", note)
	}

	body := fmt.Sprintf("The mail you sent for %s arrived.", template.HTMLEscapeString(data.ExchangeName))
	detail := ""
	if note != "" {
		detail = fmt.Sprintf("Your recipient says: %q", template.HTMLEscapeString(note))
	}
	return Email{
		Subject:  fmt.Sprintf("%s: your mail arrived", data.SiteName),
		TextBody: text,
		HTMLBody: renderHTML(data.SiteName, "Delivered", body, detail),
	}
}

type htmlData struct {
	SiteName string
	Heading  string
	Body     template.HTML
	Detail   template.HTML
}

// renderHTML wraps pre-escaped body lines in the shared layout. Callers
// must escape interpolated values before passing them in.
func renderHTML(siteName, heading, body, detail string) string {
	var buf bytes.Buffer
	_ = layoutTemplate.Execute(&buf, htmlData{
		SiteName: siteName,
		Heading:  heading,
		Body:     template.HTML(body),
		Detail:   template.HTML(detail),
	})
	return buf.String()
}

var layoutTemplate = template.Must(template.New("layout").Parse(layoutHTML))

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Heading}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px; box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #b91c1c;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <h2 style="margin: 0 0 24px; font-size: 20px; color: #1f2937;">{{.Heading}}</h2>
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151; line-height: 1.5;">{{.Body}}</p>
              {{if .Detail}}<p style="margin: 0; font-size: 14px; color: #6b7280; line-height: 1.5;">{{.Detail}}</p>{{end}}
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px; background-color: #f9fafb; border-top: 1px solid #e5e7eb; border-radius: 0 0 8px 8px;">
              <p style="margin: 0; font-size: 12px; color: #9ca3af; text-align: center;">You're receiving this because you joined a mail exchange on {{.SiteName}}.</p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
