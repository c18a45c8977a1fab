package gmail

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
)

// parsedMessage is the header and body content extracted from a raw
// RFC 5322 message.
type parsedMessage struct {
	Subject   string
	From      string
	To        []string
	Cc        []string
	MessageID string
	InReplyTo string
	Date      time.Time
	TextBody  string
	HTMLBody  string
}

// Body returns the plain text body, falling back to stripped HTML.
func (p parsedMessage) Body() string {
	if strings.TrimSpace(p.TextBody) != "" {
		return p.TextBody
	}
	return stripHTML(p.HTMLBody)
}

// parseRawMessage parses a raw message using go-message. Unparseable
// input is returned as a plain text body.
func parseRawMessage(raw []byte) parsedMessage {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return parsedMessage{TextBody: string(raw)}
	}
	defer mr.Close()

	var p parsedMessage
	h := mr.Header
	p.Subject, _ = h.Subject()
	p.From = h.Get("From")
	p.To = addressList(h, "To")
	p.Cc = addressList(h, "Cc")
	p.MessageID, _ = h.MessageID()
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		p.InReplyTo = ids[0]
	}
	p.Date, _ = h.Date()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && p.TextBody == "":
			p.TextBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && p.HTMLBody == "":
			p.HTMLBody = string(body)
		}
	}

	return p
}

// addressList returns the bare addresses of header key, falling back to
// splitting the raw value on commas and semicolons.
func addressList(h mail.Header, key string) []string {
	addrs, err := h.AddressList(key)
	if err != nil {
		return model.SplitAddresses(h.Get(key))
	}
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		k := strings.ToLower(a.Address)
		if a.Address == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a.Address)
	}
	return out
}

// buildRawMessage renders msg as an RFC 5322 message. Messages with
// attachments are multipart/mixed.
func buildRawMessage(from string, msg mailbox.OutgoingMessage, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	if from != "" {
		h.SetAddressList("From", []*mail.Address{{Address: from}})
	}
	if len(msg.To) > 0 {
		h.SetAddressList("To", toAddresses(msg.To))
	}
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", toAddresses(msg.Cc))
	}
	if msg.InReplyTo != "" {
		id := strings.Trim(msg.InReplyTo, "<>")
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	var buf bytes.Buffer
	var text mail.InlineHeader
	text.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	if len(msg.Attachments) == 0 {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("creating message writer: %w", err)
		}
		if _, err := io.WriteString(w, msg.Body); err != nil {
			return nil, fmt.Errorf("writing message body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing message body: %w", err)
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating multipart writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline part: %w", err)
	}
	pw, err := iw.CreatePart(text)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if _, err := io.WriteString(pw, msg.Body); err != nil {
		return nil, fmt.Errorf("writing text part: %w", err)
	}
	pw.Close()
	iw.Close()

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("creating attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Data); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", att.Filename, err)
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

func toAddresses(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if parsed, err := mail.ParseAddress(a); err == nil {
			out = append(out, parsed)
			continue
		}
		out = append(out, &mail.Address{Address: strings.TrimSpace(a)})
	}
	return out
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
