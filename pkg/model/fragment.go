package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Fragment wire format, version 1:
//
//	QT1|<message_id>|<chunk_index>|<total_chunks>|<data_length>|<chunk_data>
//
// The four header fields never contain the separator: message ids are
// restricted to [0-9A-Za-z_-] and the numbers are plain unsigned decimals
// without leading zeros. chunk_data is exactly data_length bytes and may
// contain the separator, since its extent comes from the length prefix and
// not from splitting.
const (
	Magic     = "QT1"
	Separator = '|'

	// MaxMessageIDLen bounds the message id field.
	MaxMessageIDLen = 64

	// maxNumberDigits keeps every numeric field well inside int range.
	maxNumberDigits = 9
)

var ErrMalformedFragment = errors.New("model: malformed fragment")

// Fragment is one chunk of a serialized payload plus the metadata needed to
// reassemble it. It is carried by exactly one QR tile and never mutated.
type Fragment struct {
	MessageID string
	// Index is zero-based and unique within a message.
	Index int
	// Total is the number of fragments in the message.
	Total int
	Data  string
}

// Validate checks the header invariants of f.
func (f Fragment) Validate() error { // A
	if err := ValidateMessageID(f.MessageID); err != nil {
		return err
	}
	if f.Total < 1 || digits(f.Total) > maxNumberDigits {
		return fmt.Errorf("%w: total %d out of range", ErrMalformedFragment, f.Total)
	}
	if f.Index < 0 || f.Index >= f.Total {
		return fmt.Errorf("%w: index %d outside [0,%d)", ErrMalformedFragment, f.Index, f.Total)
	}
	if digits(len(f.Data)) > maxNumberDigits {
		return fmt.Errorf("%w: data too long", ErrMalformedFragment)
	}
	return nil
}

// Encode returns the wire form of f. f must be valid.
func (f Fragment) Encode() string {
	var sb strings.Builder
	sb.Grow(Overhead(len(f.MessageID), f.Total, len(f.Data)) + len(f.Data))
	sb.WriteString(Magic)
	sb.WriteByte(Separator)
	sb.WriteString(f.MessageID)
	sb.WriteByte(Separator)
	sb.WriteString(strconv.Itoa(f.Index))
	sb.WriteByte(Separator)
	sb.WriteString(strconv.Itoa(f.Total))
	sb.WriteByte(Separator)
	sb.WriteString(strconv.Itoa(len(f.Data)))
	sb.WriteByte(Separator)
	sb.WriteString(f.Data)
	return sb.String()
}

// Label is the human readable one-based position of f, e.g. "3/38".
func (f Fragment) Label() string {
	return strconv.Itoa(f.Index+1) + "/" + strconv.Itoa(f.Total)
}

// ParseFragment parses the wire form of a fragment.
func ParseFragment(s string) (Fragment, error) { // A
	prefix := Magic + string(Separator)
	if !strings.HasPrefix(s, prefix) {
		return Fragment{}, fmt.Errorf("%w: missing %s header", ErrMalformedFragment, Magic)
	}

	parts := strings.SplitN(s[len(prefix):], string(Separator), 5)
	if len(parts) != 5 {
		return Fragment{}, fmt.Errorf("%w: expected 5 fields after magic, got %d", ErrMalformedFragment, len(parts))
	}

	index, err := parseNumber("chunk_index", parts[1])
	if err != nil {
		return Fragment{}, err
	}
	total, err := parseNumber("total_chunks", parts[2])
	if err != nil {
		return Fragment{}, err
	}
	length, err := parseNumber("data_length", parts[3])
	if err != nil {
		return Fragment{}, err
	}
	if len(parts[4]) != length {
		return Fragment{}, fmt.Errorf("%w: data_length %d but %d bytes present", ErrMalformedFragment, length, len(parts[4]))
	}

	f := Fragment{
		MessageID: parts[0],
		Index:     index,
		Total:     total,
		Data:      parts[4],
	}
	if err := f.Validate(); err != nil {
		return Fragment{}, err
	}
	return f, nil
}

// ValidateMessageID checks that id is usable as the message_id field.
func ValidateMessageID(id string) error {
	if id == "" || len(id) > MaxMessageIDLen {
		return fmt.Errorf("%w: message id length %d", ErrMalformedFragment, len(id))
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: invalid character %q in message id", ErrMalformedFragment, c)
		}
	}
	return nil
}

// Overhead is an upper bound on the wire bytes a fragment adds around its
// data, for a message id of idLen bytes, total fragments and dataLen bytes of
// data.
func Overhead(idLen, total, dataLen int) int {
	// magic + 5 separators + id + index + total + length
	return len(Magic) + 5 + idLen + digits(total) + digits(total) + digits(dataLen)
}

func parseNumber(field, s string) (int, error) {
	if s == "" || len(s) > maxNumberDigits {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedFragment, field, s)
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%w: %s has leading zero", ErrMalformedFragment, field)
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %s %q is not a number", ErrMalformedFragment, field, s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
