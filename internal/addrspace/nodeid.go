package addrspace

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// NodeID identifies a single node. A NodeID carries either a numeric or a
// string identifier; Text takes precedence when non-empty.
type NodeID struct {
	Namespace uint16
	Numeric   uint32
	Text      string
}

// NullNodeID asks the engine to allocate an identifier.
var NullNodeID = NodeID{}

// NumericID returns a numeric NodeID.
func NumericID(ns uint16, id uint32) NodeID {
	return NodeID{Namespace: ns, Numeric: id}
}

// StringID returns a string NodeID.
func StringID(ns uint16, id string) NodeID {
	return NodeID{Namespace: ns, Text: id}
}

// IsNull reports whether the id is the null NodeID.
func (n NodeID) IsNull() bool {
	return n == NullNodeID
}

// IsNumeric reports whether the id uses a numeric identifier.
func (n NodeID) IsNumeric() bool {
	return n.Text == ""
}

// String renders the id in the standard "ns=1;i=42" notation. Namespace 0 is
// rendered without the ns prefix.
func (n NodeID) String() string {
	var id string
	if n.Text != "" {
		id = "s=" + n.Text
	} else {
		id = "i=" + strconv.FormatUint(uint64(n.Numeric), 10)
	}
	if n.Namespace == 0 {
		return id
	}
	return "ns=" + strconv.FormatUint(uint64(n.Namespace), 10) + ";" + id
}

// ParseNodeID parses the notation produced by NodeID.String.
func ParseNodeID(s string) (NodeID, error) {
	var out NodeID
	rest := strings.TrimSpace(s)

	if strings.HasPrefix(rest, "ns=") {
		sep := strings.IndexByte(rest, ';')
		if sep < 0 {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		ns, err := strconv.ParseUint(rest[3:sep], 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		out.Namespace = uint16(ns)
		rest = rest[sep+1:]
	}

	switch {
	case strings.HasPrefix(rest, "i="):
		v, err := strconv.ParseUint(rest[2:], 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		out.Numeric = uint32(v)
	case strings.HasPrefix(rest, "s=") && len(rest) > 2:
		out.Text = rest[2:]
	default:
		return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	return out, nil
}

// QualifiedName is a browse name scoped to a namespace.
type QualifiedName struct {
	Namespace uint16
	Name      string
}

// String renders the name as "ns:Name".
func (q QualifiedName) String() string {
	if q.Namespace == 0 {
		return q.Name
	}
	return strconv.FormatUint(uint64(q.Namespace), 10) + ":" + q.Name
}

// LocalizedText is a human readable text with an optional locale.
type LocalizedText struct {
	Locale string `json:"locale,omitempty"`
	Text   string `json:"text"`
}

// CanonicalLocale normalises a BCP 47 locale ("en_us" becomes "en-US").
// The empty locale stays empty.
func CanonicalLocale(locale string) (string, error) {
	if locale == "" {
		return "", nil
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%w: locale %q: %w", ErrTypeMismatch, locale, err)
	}
	return tag.String(), nil
}

// Text returns an en-US LocalizedText.
func Text(s string) LocalizedText {
	return LocalizedText{Locale: "en-US", Text: s}
}
