package mailbox

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// replacement stands in for bytes that cannot be decoded.
const replacement = "\uFFFD"

var encodedWord = regexp.MustCompile(`=\?([^?\s]+)\?([bBqQ])\?([^?\s]*)\?=`)

var unfold = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// segment is one run of a header value: either plain text or the payload
// of an RFC 2047 encoded-word with its declared charset.
type segment struct {
	payload  string
	charset  string
	encoding byte
}

// DecodeSubject turns a raw Subject header value into readable text.
// Encoded-words are decoded in place, undecodable bytes become U+FFFD, and
// the result is trimmed. It never fails.
func DecodeSubject(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	for _, seg := range splitSegments(unfold.Replace(raw)) {
		if seg.charset == "" {
			b.WriteString(strings.ToValidUTF8(seg.payload, replacement))
			continue
		}
		b.WriteString(decodeWord(seg))
	}
	return strings.TrimSpace(b.String())
}

// SubjectFromHeader extracts and decodes the Subject field from a raw
// header block as returned by a header-fields fetch.
func SubjectFromHeader(raw []byte) (string, error) {
	raw = bytes.TrimRight(raw, "\r\n")
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}

	block := make([]byte, 0, len(raw)+4)
	block = append(block, raw...)
	block = append(block, "\r\n\r\n"...)

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(block)))
	if err != nil {
		return "", fmt.Errorf("parsing header: %w", err)
	}
	return DecodeSubject(h.Get("Subject")), nil
}

// splitSegments breaks s into plain and encoded runs in their original
// order. Whitespace between two adjacent encoded-words is dropped.
func splitSegments(s string) []segment {
	var segs []segment
	last := 0
	prevEncoded := false

	for _, m := range encodedWord.FindAllStringSubmatchIndex(s, -1) {
		between := s[last:m[0]]
		if between != "" && !(prevEncoded && strings.TrimSpace(between) == "") {
			segs = append(segs, segment{payload: between})
		}

		cs := s[m[2]:m[3]]
		// RFC 2231 allows a language suffix: =?utf-8*en?Q?...?=
		if i := strings.IndexByte(cs, '*'); i >= 0 {
			cs = cs[:i]
		}
		segs = append(segs, segment{
			payload:  s[m[6]:m[7]],
			charset:  cs,
			encoding: s[m[4]] | 0x20,
		})

		last = m[1]
		prevEncoded = true
	}

	if last < len(s) {
		segs = append(segs, segment{payload: s[last:]})
	}
	return segs
}

func decodeWord(seg segment) string {
	var data []byte
	var ok bool
	switch seg.encoding {
	case 'b':
		data, ok = decodeB(seg.payload)
	case 'q':
		data, ok = decodeQ(seg.payload), true
	}
	if !ok {
		return replacement
	}
	return toUTF8(seg.charset, data)
}

func decodeB(payload string) ([]byte, bool) {
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, true
	}
	// Some senders drop the padding.
	if data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err == nil {
		return data, true
	}
	return nil, false
}

// decodeQ decodes the Q encoding. Malformed escapes are kept literally.
func decodeQ(payload string) []byte {
	out := make([]byte, 0, len(payload))
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		switch {
		case c == '_':
			out = append(out, ' ')
		case c == '=' && i+2 < len(payload) && isHex(payload[i+1]) && isHex(payload[i+2]):
			out = append(out, unhex(payload[i+1])<<4|unhex(payload[i+2]))
			i += 2
		default:
			out = append(out, c)
		}
	}
	return out
}

// toUTF8 converts data from the named charset. Unknown charsets are read
// as UTF-8.
func toUTF8(name string, data []byte) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return strings.ToValidUTF8(string(data), replacement)
	}

	r, err := charset.Reader(name, bytes.NewReader(data))
	if err != nil {
		enc, ierr := ianaindex.IANA.Encoding(name)
		if ierr != nil || enc == nil {
			return strings.ToValidUTF8(string(data), replacement)
		}
		r = transform.NewReader(bytes.NewReader(data), enc.NewDecoder())
	}

	out, err := io.ReadAll(r)
	if err != nil {
		out = append(out, replacement...)
	}
	return strings.ToValidUTF8(string(out), replacement)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
