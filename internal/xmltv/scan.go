// Package xmltv extracts guide records from XMLTV-shaped text without a full
// XML parse. EPG feeds in the wild are often truncated, mis-escaped or
// concatenated; the scanner takes what it can and skips what it cannot.
package xmltv

import (
	"html"
	"strings"
)

// RawChannel is a <channel> declaration as found in a document.
type RawChannel struct {
	ID          string
	DisplayName string
}

// RawProgramme is a <programme> as found in a document. Times stay raw.
type RawProgramme struct {
	Start       string
	Stop        string
	Channel     string
	Title       string
	Description string
}

// Document is everything Parse found in one source. Blocks holds each
// <channel>/<programme> element verbatim in document order.
type Document struct {
	Channels   []RawChannel
	Programmes []RawProgramme
	Blocks     []string
}

const (
	elemChannel   = "channel"
	elemProgramme = "programme"
)

// Parse scans text for <channel> and <programme> elements. It never fails:
// missing attributes and sub-elements read as "", an element without a
// closing tag is dropped and scanning resumes after its start tag. Each byte
// is visited a bounded number of times, so hostile input cannot make it
// backtrack.
func Parse(text string) Document {
	var doc Document
	pos := 0
	for pos < len(text) {
		i := strings.IndexByte(text[pos:], '<')
		if i < 0 {
			break
		}
		i += pos
		rest := text[i:]
		if next := skipOpaque(text, i); next != 0 {
			if next < 0 {
				return doc
			}
			pos = next
			continue
		}
		switch {
		case isStart(rest, elemChannel):
			el, next := scanElement(text, i, elemChannel)
			if el.ok {
				doc.Channels = append(doc.Channels, RawChannel{
					ID:          attr(el.head, "id"),
					DisplayName: childText(el.body, "display-name"),
				})
				doc.Blocks = append(doc.Blocks, el.block)
			}
			pos = next
		case isStart(rest, elemProgramme):
			el, next := scanElement(text, i, elemProgramme)
			if el.ok {
				doc.Programmes = append(doc.Programmes, RawProgramme{
					Start:       attr(el.head, "start"),
					Stop:        attr(el.head, "stop"),
					Channel:     attr(el.head, "channel"),
					Title:       childText(el.body, "title"),
					Description: childText(el.body, "desc"),
				})
				doc.Blocks = append(doc.Blocks, el.block)
			}
			pos = next
		default:
			pos = i + 1
		}
	}
	return doc
}

type element struct {
	ok    bool
	block string // whole element, start tag through end tag
	head  string // start tag contents after the name (attributes)
	body  string // inner text between start and end tag
}

// scanElement reads the element of the given name starting at text[start].
// It returns the position to resume scanning from.
func scanElement(text string, start int, name string) (element, int) {
	s := text[start:]
	gt := tagEnd(s)
	if gt < 0 {
		return element{}, start + 1
	}
	head := s[1+len(name) : gt]
	if h := strings.TrimSpace(head); strings.HasSuffix(h, "/") {
		return element{ok: true, block: s[:gt+1], head: strings.TrimSuffix(h, "/")}, start + gt + 1
	}
	closeAt, nextStart := findClose(s, gt+1, name)
	switch {
	case closeAt >= 0:
		endGt := strings.IndexByte(s[closeAt:], '>')
		if endGt < 0 {
			return element{}, len(text)
		}
		end := closeAt + endGt + 1
		return element{ok: true, block: s[:end], head: head, body: s[gt+1 : closeAt]}, start + end
	case nextStart >= 0:
		// Unterminated; the next top-level element starts here.
		return element{}, start + nextStart
	default:
		return element{}, start + gt + 1
	}
}

// findClose walks tags from s[from:] until it meets "</name" or the start of
// another top-level element, whichever comes first.
func findClose(s string, from int, name string) (closeAt, nextStart int) {
	j := from
	for j < len(s) {
		k := strings.IndexByte(s[j:], '<')
		if k < 0 {
			break
		}
		k += j
		if next := skipOpaque(s, k); next != 0 {
			if next < 0 {
				break
			}
			j = next
			continue
		}
		rest := s[k:]
		if strings.HasPrefix(rest, "</"+name) && boundary(rest, 2+len(name)) {
			return k, -1
		}
		if isStart(rest, elemChannel) || isStart(rest, elemProgramme) {
			return -1, k
		}
		j = k + 1
	}
	return -1, -1
}

// skipOpaque returns the index just past the comment or CDATA section that
// starts at s[k], 0 if none starts there, or -1 if it is unterminated.
func skipOpaque(s string, k int) int {
	var open, shut string
	switch rest := s[k:]; {
	case strings.HasPrefix(rest, "<!--"):
		open, shut = "<!--", "-->"
	case strings.HasPrefix(rest, "<![CDATA["):
		open, shut = "<![CDATA[", "]]>"
	default:
		return 0
	}
	end := strings.Index(s[k+len(open):], shut)
	if end < 0 {
		return -1
	}
	return k + len(open) + end + len(shut)
}

// isStart reports whether s begins with a start tag for name.
func isStart(s, name string) bool {
	return len(s) > 1 && s[0] == '<' && strings.HasPrefix(s[1:], name) && boundary(s, 1+len(name))
}

func boundary(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	switch s[i] {
	case ' ', '\t', '\r', '\n', '>', '/':
		return true
	}
	return false
}

// tagEnd returns the index of the '>' closing the tag at s[0], ignoring any
// '>' inside quoted attribute values, or -1.
func tagEnd(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '<':
			// A new tag began before this one closed ('<' is never legal in
			// an attribute value either).
			return -1
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

// attr returns the unescaped value of key in a start tag's attribute list.
func attr(head, key string) string {
	i := 0
	for i < len(head) {
		for i < len(head) && isSpace(head[i]) {
			i++
		}
		nameStart := i
		for i < len(head) && head[i] != '=' && !isSpace(head[i]) {
			i++
		}
		name := head[nameStart:i]
		for i < len(head) && isSpace(head[i]) {
			i++
		}
		if i >= len(head) || head[i] != '=' {
			if i == nameStart {
				i++
			}
			continue
		}
		i++
		for i < len(head) && isSpace(head[i]) {
			i++
		}
		var val string
		if i < len(head) && (head[i] == '"' || head[i] == '\'') {
			q := head[i]
			end := strings.IndexByte(head[i+1:], q)
			if end < 0 {
				val = head[i+1:]
				i = len(head)
			} else {
				val = head[i+1 : i+1+end]
				i += end + 2
			}
		} else {
			valStart := i
			for i < len(head) && !isSpace(head[i]) {
				i++
			}
			val = head[valStart:i]
		}
		if name == key {
			return strings.TrimSpace(html.UnescapeString(val))
		}
	}
	return ""
}

// childText returns the text of the first <name> sub-element in body.
func childText(body, name string) string {
	for j := 0; j < len(body); {
		k := strings.IndexByte(body[j:], '<')
		if k < 0 {
			return ""
		}
		k += j
		if next := skipOpaque(body, k); next != 0 {
			if next < 0 {
				return ""
			}
			j = next
			continue
		}
		if !isStart(body[k:], name) {
			j = k + 1
			continue
		}
		rest := body[k:]
		gt := tagEnd(rest)
		if gt < 0 || strings.HasSuffix(strings.TrimSpace(rest[:gt]), "/") {
			return ""
		}
		end, _ := findClose(rest, gt+1, name)
		if end < 0 {
			return ""
		}
		return textContent(rest[gt+1 : end])
	}
	return ""
}

// textContent unwraps CDATA sections and unescapes entities elsewhere.
func textContent(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "<![CDATA[")
		if i < 0 {
			b.WriteString(html.UnescapeString(s))
			break
		}
		b.WriteString(html.UnescapeString(s[:i]))
		s = s[i+len("<![CDATA["):]
		end := strings.Index(s, "]]>")
		if end < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:end])
		s = s[end+3:]
	}
	return strings.TrimSpace(b.String())
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
