// Package identity holds the logical instance identifier (CLID) persisted in instance.clid
// and the technical fingerprint (CTID) of the running installation.
package identity

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/glorpus-work/pkgconnect/pkg/errutils"
)

// InstanceType is the kind of installation an identity was issued for.
type InstanceType string

// Instance types.
const (
	TypeDev     InstanceType = "dev"
	TypePreprod InstanceType = "preprod"
	TypeProd    InstanceType = "prod"
)

// Separator joins the two id components in the serialized client id.
const Separator = "--"

// ParseInstanceType parses an instance type name, defaulting to TypeProd when empty.
func ParseInstanceType(s string) (InstanceType, error) {
	switch InstanceType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeProd:
		return TypeProd, nil
	case TypePreprod:
		return TypePreprod, nil
	case TypeDev:
		return TypeDev, nil
	default:
		return "", fmt.Errorf("%w: unknown instance type %q", errutils.ErrInvalidIdentity, s)
	}
}

// LogicalID is the registered identity of an instance.
type LogicalID struct {
	ID1         string       `json:"id1"`
	ID2         string       `json:"id2"`
	Description string       `json:"description,omitempty"`
	Type        InstanceType `json:"type,omitempty"`
}

// String returns the serialized client id, id1--id2.
func (l LogicalID) String() string {
	return l.ID1 + Separator + l.ID2
}

// Validate checks that both id components are present.
func (l LogicalID) Validate() error {
	if strings.TrimSpace(l.ID1) == "" || strings.TrimSpace(l.ID2) == "" {
		return fmt.Errorf("%w: both id components must be non-empty", errutils.ErrInvalidIdentity)
	}
	if strings.ContainsAny(l.ID1+l.ID2, "\r\n") {
		return fmt.Errorf("%w: id components must be single-line", errutils.ErrInvalidIdentity)
	}
	if _, err := ParseInstanceType(string(l.Type)); err != nil {
		return err
	}
	return nil
}

// Marshal renders the identity in the instance.clid layout, base64-encoded as a whole when encoded is set.
func (l LogicalID) Marshal(encoded bool) []byte {
	t := l.Type
	if t == "" {
		t = TypeProd
	}
	desc := strings.ReplaceAll(l.Description, "\n", " ")
	plain := []byte(strings.Join([]string{l.ID1, l.ID2, desc, string(t)}, "\n") + "\n")
	if !encoded {
		return plain
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(plain)))
	base64.StdEncoding.Encode(out, plain)
	return out
}

// ParseLogicalID parses the content of an instance.clid file.
// The content may be plain or base64-encoded as a whole.
func ParseLogicalID(data []byte) (LogicalID, error) {
	content := bytes.TrimSpace(data)
	if len(content) == 0 {
		return LogicalID{}, fmt.Errorf("%w: empty identity file", errutils.ErrInvalidIdentity)
	}

	if !bytes.ContainsAny(content, "\n") {
		decoded, err := base64.StdEncoding.DecodeString(string(content))
		if err != nil {
			return LogicalID{}, fmt.Errorf("%w: single-line identity is not valid base64: %v", errutils.ErrInvalidIdentity, err)
		}
		content = bytes.TrimSpace(decoded)
	}

	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return LogicalID{}, fmt.Errorf("%w: expected at least two lines, got %d", errutils.ErrInvalidIdentity, len(lines))
	}

	id := LogicalID{
		ID1: strings.TrimSpace(lines[0]),
		ID2: strings.TrimSpace(lines[1]),
	}
	if len(lines) > 2 {
		id.Description = strings.TrimSpace(lines[2])
	}
	typeLine := ""
	if len(lines) > 3 {
		typeLine = lines[3]
	}
	t, err := ParseInstanceType(typeLine)
	if err != nil {
		return LogicalID{}, err
	}
	id.Type = t

	if err := id.Validate(); err != nil {
		return LogicalID{}, err
	}
	return id, nil
}
