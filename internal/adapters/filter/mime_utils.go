package filter

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"

	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/utils"
	"golang.org/x/text/encoding/htmlindex"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// charsetReader decodes the charsets mime handles natively (utf-8,
// iso-8859-1, us-ascii) plus everything the WHATWG encoding index knows.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeEncodedHeader decodes RFC 2047 encoded words in a header value
func decodeEncodedHeader(value string) (string, error) {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value, fmt.Errorf("failed to decode header: %w", err)
	}
	return decoded, nil
}

// fromAddress returns the bare address of a From header, decoding an encoded
// display name if present
func fromAddress(from string) string {
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	addr, err := parser.Parse(from)
	if err != nil {
		return utils.SenderAddress(from)
	}
	return addr.Address
}

// parseEmail reads the headers of a raw message. The sender is the From
// header address, falling back to the envelope sender.
func parseEmail(raw []byte, envelopeSender string, recipients []string) (*core.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	email := &core.Email{
		ID:      msg.Header.Get("Message-Id"),
		From:    fromAddress(msg.Header.Get("From")),
		To:      recipients,
		Headers: make(map[string][]string, len(msg.Header)),
	}
	for key, values := range msg.Header {
		email.Headers[key] = values
	}
	if email.From == "" {
		email.From = utils.SenderAddress(envelopeSender)
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}
	email.Subject = strings.TrimSpace(subject)

	return email, nil
}

// HeaderNames are the headers written onto labeled mail
type HeaderNames struct {
	Label      string
	Confidence string
	Action     string
}

// annotate prepends the label headers to the raw message. The rest of the
// message, body and MIME parts included, is passed through untouched.
func annotate(raw []byte, names HeaderNames, decision *core.LabelDecision) []byte {
	var out bytes.Buffer
	out.Grow(len(raw) + 128)

	if names.Label != "" {
		fmt.Fprintf(&out, "%s: %s\r\n", names.Label, headerValue(decision.Label))
	}
	if names.Confidence != "" {
		fmt.Fprintf(&out, "%s: %.4f\r\n", names.Confidence, decision.Confidence)
	}
	if names.Action != "" && decision.Action != "" {
		fmt.Fprintf(&out, "%s: %s\r\n", names.Action, decision.Action)
	}
	out.Write(raw)
	return out.Bytes()
}

// headerValue keeps a label on one line and encodes non-ASCII text
func headerValue(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	return mime.QEncoding.Encode("utf-8", v)
}
