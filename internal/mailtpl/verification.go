package mailtpl

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
)

// Rendered holds the output of a template render.
type Rendered struct {
	Subject  string
	HTMLBody string
	TextBody string
}

var verificationTmpl = template.Must(template.New("verification").Parse(strings.TrimSpace(`
<html>
  <body>
    <h2>Welcome to Resonate{{if .FirstName}}, {{.FirstName}}{{end}}!</h2>
    <p>Please confirm your email address to start sharing music.</p>
    <p><a href="{{.VerificationURL}}">Verify my email</a></p>
    <p>If the button does not work, copy this link into your browser:</p>
    <p>{{.VerificationURL}}</p>
    <p>This link expires in 24 hours. If you did not create an account, you can ignore this message.</p>
  </body>
</html>
`)))

// RenderVerification produces the verification email. It performs no I/O; the
// text body is derived from the HTML when not separately authored.
func RenderVerification(firstName, verificationURL string) (Rendered, error) {
	var buf strings.Builder
	err := verificationTmpl.Execute(&buf, struct {
		FirstName       string
		VerificationURL string
	}{
		FirstName:       strings.TrimSpace(firstName),
		VerificationURL: verificationURL,
	})
	if err != nil {
		return Rendered{}, fmt.Errorf("mailtpl: render verification: %w", err)
	}

	htmlBody := buf.String()
	return Rendered{
		Subject:  "Confirm your Resonate account",
		HTMLBody: htmlBody,
		TextBody: StripTags(htmlBody),
	}, nil
}

var (
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// StripTags converts an HTML fragment into a plain-text rendition by removing
// tags and collapsing whitespace. The derivation is deterministic.
func StripTags(input string) string {
	text := tagPattern.ReplaceAllString(input, "\n")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")

	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
