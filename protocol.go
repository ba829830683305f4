package gv6

import (
	"strconv"
	"strings"
)

const (
	// commandTerminator ends every outgoing command.
	commandTerminator = "\r"
	// replyTerminator frames every reply and separates status lines.
	replyTerminator = "\r\n\n"
)

// normalizeReply strips the framing artifacts the instrument appends to every
// reply: each "\r\n\n" followed by an optional prompt character ('>' ready,
// '?' error) and a trailing space is removed. Interior "\r\n\n" separators
// without the trailing space stay put so multi-line reports keep their
// structure.
func normalizeReply(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		if strings.HasPrefix(raw[i:], replyTerminator) {
			j := i + len(replyTerminator)
			if j < len(raw) && (raw[j] == '>' || raw[j] == '?') {
				j++
			}
			if j < len(raw) && raw[j] == ' ' {
				i = j + 1
				continue
			}
		}
		b.WriteByte(raw[i])
		i++
	}
	return b.String()
}

// parseCount extracts the signed integer immediately following label in a
// reply, e.g. "TPE-120" parses to -120 for label "TPE". ok is false when no
// occurrence of the label is followed by digits; the instrument omits the
// value that way while the axis is in motion.
func parseCount(reply, label string) (counts int, ok bool) {
	for search := reply; ; {
		idx := strings.Index(search, label)
		if idx < 0 {
			return 0, false
		}
		start := idx + len(label)
		end := start
		if end < len(search) && search[end] == '-' {
			end++
		}
		digits := end
		for end < len(search) && search[end] >= '0' && search[end] <= '9' {
			end++
		}
		if end > digits {
			n, err := strconv.Atoi(search[start:end])
			if err == nil {
				return n, true
			}
		}
		search = search[idx+1:]
	}
}

// formatRevs renders a velocity or acceleration setpoint as the decimal
// literal the instrument expects, always with a fractional part (1 -> "1.0").
func formatRevs(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
