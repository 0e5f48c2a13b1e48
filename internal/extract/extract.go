// Package extract turns raw RFC822 bytes into the best-available body content.
package extract

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
)

// Content holds the extracted body. HTML is preferred; Text is the fallback
// when no usable HTML part exists.
type Content struct {
	HTML string
	Text string
}

func (c Content) Empty() bool {
	return strings.TrimSpace(c.HTML) == "" && strings.TrimSpace(c.Text) == ""
}

const maxPartBytes = 8 << 20

// Extract walks the MIME structure and keeps the largest inline text/html and
// text/plain parts, skipping attachments. It never fails: malformed messages
// degrade to empty or plain-text content, undecodable bytes are replaced.
func Extract(raw []byte) Content {
	var out Content
	if len(raw) == 0 {
		return out
	}

	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return extractFallback(raw)
	}
	if mr == nil {
		return extractFallback(raw)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			break
		}

		ih, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			// attachment; never carries the alert body
			continue
		}

		ct, _, _ := ih.ContentType()
		b, _ := io.ReadAll(io.LimitReader(p.Body, maxPartBytes))
		s := strings.ToValidUTF8(string(b), "�")

		switch strings.ToLower(ct) {
		case "text/html":
			if len(s) > len(out.HTML) {
				out.HTML = s
			}
		case "text/plain":
			if len(s) > len(out.Text) {
				out.Text = s
			}
		}
	}

	return out
}

// extractFallback handles messages go-message refuses to parse. Single-part
// only: decode the transfer encoding and classify by Content-Type.
func extractFallback(raw []byte) Content {
	var out Content

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		// not even header/body shaped; best-effort plain text
		out.Text = strings.ToValidUTF8(string(raw), "�")
		return out
	}

	body, _ := io.ReadAll(io.LimitReader(msg.Body, maxPartBytes))
	cte := strings.ToLower(strings.TrimSpace(msg.Header.Get("Content-Transfer-Encoding")))
	body = decodeTransferEncoding(body, cte)
	s := strings.ToValidUTF8(string(body), "�")

	mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err == nil && strings.EqualFold(mediaType, "text/html") {
		out.HTML = s
	} else {
		out.Text = s
	}
	return out
}

func decodeTransferEncoding(b []byte, cte string) []byte {
	switch cte {
	case "base64":
		dec := base64.NewDecoder(base64.StdEncoding, bytes.NewReader(b))
		out, _ := io.ReadAll(io.LimitReader(dec, maxPartBytes))
		return out
	case "quoted-printable":
		dec := quotedprintable.NewReader(bytes.NewReader(b))
		out, _ := io.ReadAll(io.LimitReader(dec, maxPartBytes))
		return out
	default:
		return b
	}
}
