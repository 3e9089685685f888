package mail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

const resetPasswordTemplate = `# {{.ProjectName}}

Hello **{{.Username}}**,

We received a request to recover the password for the account registered to {{.Email}}.

[Reset your password]({{.Link}})

The link is valid for {{.ValidHours}} hours. If you did not ask for a password reset you can ignore this email.
`

var resetPassword = template.Must(template.New("reset_password").Parse(resetPasswordTemplate))

// ResetPasswordData fills the password recovery email
type ResetPasswordData struct {
	ProjectName string
	Username    string
	Email       string
	Link        string
	ValidHours  int
}

// ResetPasswordMessage renders the recovery email for data
func ResetPasswordMessage(from string, data ResetPasswordData) (Message, error) {
	return Render(resetPassword, from, data.Email,
		fmt.Sprintf("%s - Password recovery for user %s", data.ProjectName, data.Username), data)
}

// ResetLink appends token to the reset page URL
func ResetLink(baseURL, token string) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + "token=" + token
}

// ValidHours rounds a token lifetime up to whole hours
func ValidHours(d time.Duration) int {
	h := int(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	return h
}

// Render executes a Markdown template and builds both message bodies
func Render(tmpl *template.Template, from, to, subject string, data interface{}) (Message, error) {
	var src bytes.Buffer
	if err := tmpl.Execute(&src, data); err != nil {
		return Message{}, apperrors.NewInternalErrorWithCause("failed to render mail template", err)
	}

	var out bytes.Buffer
	if err := markdown.Convert(src.Bytes(), &out); err != nil {
		return Message{}, apperrors.NewInternalErrorWithCause("failed to convert mail markdown", err)
	}

	text, err := PlainText(out.String())
	if err != nil {
		return Message{}, err
	}

	return Message{
		From:    from,
		To:      to,
		Subject: subject,
		HTML:    out.String(),
		Text:    text,
	}, nil
}

// PlainText flattens an HTML body into paragraphs. Links keep their target
// in parentheses.
func PlainText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", apperrors.NewInternalErrorWithCause("failed to parse mail html", err)
	}

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.HasPrefix(href, "mailto:") || href == strings.TrimSpace(s.Text()) {
			return
		}
		s.SetText(fmt.Sprintf("%s (%s)", strings.TrimSpace(s.Text()), href))
	})

	var blocks []string
	doc.Find("h1, h2, h3, h4, p, li").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	return strings.Join(blocks, "\n\n"), nil
}
