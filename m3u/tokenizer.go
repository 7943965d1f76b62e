package m3u

import "strings"

// splitTags splits the portion of an entry line after its directive prefix
// into raw tag strings.
//
// The scan is character by character. Double quotes toggle a protected state
// in which delimiter characters do not end a tag. The delimiter mode (space
// or comma) is unknown until the first unquoted space or comma is seen; from
// then on only that character breaks tags. A line with exactly one unquoted
// comma is special-cased first: everything after that comma is a trailing
// literal tag, typically the display title.
//
// Malformed quoting (odd quote count) is tolerated: the scan simply continues
// with the rest of the line treated as quoted or unquoted, whichever state
// the last quote left it in. No error is ever reported.
func splitTags(s string) []string {
	var lastTag string
	var hasLast bool
	if idx, n := unquotedCommas(s); n == 1 {
		lastTag = s[idx+1:]
		s = s[:idx]
		hasLast = true
	}

	var tags []string
	var tag []byte
	tagStarted := false
	delimSpace := false
	delimComma := false
	delimUnknown := false
	quoted := false

	for i := 0; i < len(s); {
		ch := s[i]
		if ch == '"' {
			quoted = !quoted
		}
		if !tagStarted && ch == ' ' {
			delimSpace = true
			tagStarted = true
			i++
			continue
		}
		if !tagStarted && ch == ',' {
			delimComma = true
			tagStarted = true
			i++
			continue
		}
		if i == 0 {
			delimUnknown = true
			tagStarted = true
			tag = append(tag, ch)
			i++
			continue
		}

		switch {
		case delimUnknown:
			if (ch == ' ' || ch == ',') && !quoted {
				tagStarted = false
				delimUnknown = false
			}
		case delimSpace:
			if ch == ' ' && !quoted {
				tagStarted = false
				delimSpace = false
			}
		case delimComma:
			if ch == ',' && !quoted {
				tagStarted = false
				delimComma = false
			}
		}
		if !tagStarted {
			// The delimiter byte is re-examined on the next pass so it
			// can establish (or re-arm) the delimiter mode.
			tags = append(tags, string(tag))
			tag = tag[:0]
			continue
		}
		tag = append(tag, ch)
		i++
	}
	if len(tag) > 0 {
		tags = append(tags, string(tag))
	}
	if hasLast {
		tags = append(tags, lastTag)
	}

	out := tags[:0]
	for _, t := range tags {
		t = trimDelimiters(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// trimDelimiters strips leading and trailing delimiter characters in a loop,
// which also collapses doubled delimiters at tag boundaries.
func trimDelimiters(tag string) string {
	for {
		switch {
		case strings.HasSuffix(tag, " "), strings.HasSuffix(tag, ","):
			tag = tag[:len(tag)-1]
		case strings.HasPrefix(tag, " "), strings.HasPrefix(tag, ","):
			tag = tag[1:]
		default:
			return tag
		}
	}
}

// unquotedCommas returns the index of the first unquoted comma in s and the
// total count of unquoted commas.
func unquotedCommas(s string) (int, int) {
	idx, count := -1, 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				if count == 0 {
					idx = i
				}
				count++
			}
		}
	}
	return idx, count
}
