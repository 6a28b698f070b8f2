package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const accessSubject = "Your access link: %s"

var accessHTML = htmltemplate.Must(htmltemplate.New("access.html").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Thank you for your purchase!</p>
<p>Open the article <b>{{.Article}}</b> with the link below. It signs you in on this device, no password needed.</p>
<p><a href="{{.Link}}">Read {{.Article}}</a></p>
<p>If you open the article on another device, request a new link on the article page.</p>
</body>
</html>
`))

var accessText = texttemplate.Must(texttemplate.New("access.txt").Parse(`Thank you for your purchase!

Open the article "{{.Article}}" with the link below. It signs you in on this device, no password needed.

{{.Link}}

If you open the article on another device, request a new link on the article page.
`))

// AccessMessage composes email carrying magic link to the article
func AccessMessage(to string, articleSlug string, link string) (Message, error) {
	data := struct {
		Article string
		Link    string
	}{articleSlug, link}

	var html, text bytes.Buffer
	if err := accessHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("error while rendering html email. Err: %w", err)
	}
	if err := accessText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("error while rendering text email. Err: %w", err)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf(accessSubject, articleSlug),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
