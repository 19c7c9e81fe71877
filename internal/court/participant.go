package court

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var memberNamespace = uuid.MustParse("6f1c5b8e-2a4d-4c1e-9b7a-3d2f0e8c1a55")

// NormalizeName folds a display name into its comparison form: NFKC, trimmed,
// internal whitespace collapsed, lower-cased.
func NormalizeName(name string) string {
	folded := norm.NFKC.String(name)
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// DeriveID returns a deterministic identity key for a display name so that
// separate processes agree on the key for the same person.
func DeriveID(name string) string {
	normalized := NormalizeName(name)
	if normalized == "" {
		return ""
	}
	return "m_" + uuid.NewSHA1(memberNamespace, []byte(normalized)).String()
}

// Key returns the identity used for duplicate detection.
func (p Participant) Key() string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return "id:" + id
	}
	return "name:" + NormalizeName(p.Name)
}

// SameAs applies the duplicate rule: identity keys when both sides carry one,
// otherwise normalized names.
func (p Participant) SameAs(other Participant) bool {
	a, b := strings.TrimSpace(p.ID), strings.TrimSpace(other.ID)
	if a != "" && b != "" {
		return a == b
	}
	name := NormalizeName(p.Name)
	return name != "" && name == NormalizeName(other.Name)
}

// WithDerivedID fills a missing identity key from the display name.
func (p Participant) WithDerivedID() Participant {
	p.Name = strings.TrimSpace(p.Name)
	if strings.TrimSpace(p.ID) == "" {
		p.ID = DeriveID(p.Name)
	}
	return p
}
