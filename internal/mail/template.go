package mail

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

// ConfirmationSubject is the subject line of the confirmation email.
const ConfirmationSubject = "Confirme seu e-mail"

var confirmationBody = template.Must(template.New("confirmation").Parse(
	`Olá {{.Name}},

Por favor confirme seu endereço de e-mail clicando no link abaixo:

{{.Link}}

Se não se registrou, ignore esta mensagem.
`))

// ConfirmationLink appends the token to baseURL as the token query parameter.
func ConfirmationLink(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse confirm url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConfirmationMessage renders the confirmation email for one recipient.
// name falls back to the address when empty.
func ConfirmationMessage(to, name, link string) (Message, error) {
	if strings.TrimSpace(name) == "" {
		name = to
	}

	var body strings.Builder
	if err := confirmationBody.Execute(&body, struct{ Name, Link string }{name, link}); err != nil {
		return Message{}, fmt.Errorf("render confirmation mail: %w", err)
	}

	return Message{
		To:      []string{to},
		Subject: ConfirmationSubject,
		Body:    body.String(),
	}, nil
}
