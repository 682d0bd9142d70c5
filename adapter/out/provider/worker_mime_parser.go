package provider

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"triage_worker/core/domain"
)

// ParseRawMessage decodes an RFC 5322 message into the fields the classifier
// reads. The text body prefers text/plain; an HTML-only message is converted
// to Markdown.
func ParseRawMessage(raw []byte) (*domain.Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	email := &domain.Email{}
	h := mr.Header

	if id, err := h.MessageID(); err == nil {
		email.MessageID = id
	}
	if date, err := h.Date(); err == nil {
		email.Date = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.From = formatAddress(from[0])
	}
	if email.From == "" {
		email.From = decodeHeader(h.Get("From"))
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			email.To = append(email.To, a.Address)
		}
	}
	if subject, err := h.Subject(); err == nil {
		email.Subject = subject
	}
	if email.Subject == "" {
		email.Subject = decodeHeader(h.Get("Subject"))
	}

	var plain, html strings.Builder
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		// an unknown charset still yields a readable, undecoded part
		if err != nil && !(message.IsUnknownCharset(err) && p != nil) {
			break
		}
		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := mime.ParseMediaType(ih.Get("Content-Type"))
		b, readErr := io.ReadAll(p.Body)
		if readErr != nil {
			continue
		}
		switch ct {
		case "text/html":
			html.Write(b)
		case "", "text/plain":
			if plain.Len() > 0 {
				plain.WriteString("\n")
			}
			plain.Write(b)
		}
	}

	email.HTML = html.String()
	email.Text = strings.TrimSpace(plain.String())
	if email.Text == "" && email.HTML != "" {
		md, err := htmltomarkdown.ConvertString(email.HTML)
		if err == nil {
			email.Text = strings.TrimSpace(md)
		} else {
			email.Text = email.HTML
		}
	}
	return email, nil
}

// formatAddress renders "Name <addr>" without re-encoding non-ASCII names.
func formatAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// decodeHeader decodes RFC 2047 encoded-words in a raw header value.
func decodeHeader(s string) string {
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}
