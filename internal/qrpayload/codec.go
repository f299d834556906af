package qrpayload

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind tags which roster a person belongs to.
type Kind string

const (
	KindStudent Kind = "student"
	KindStaff   Kind = "staff"

	// KindUnknown marks a bare-identifier payload whose kind must be
	// discovered by roster lookup.
	KindUnknown Kind = ""
)

// Valid reports whether k is one of the two concrete person kinds.
func (k Kind) Valid() bool {
	return k == KindStudent || k == KindStaff
}

// Format identifies which wire format a payload was decoded from.
type Format string

const (
	FormatURL      Format = "url"
	FormatJSON     Format = "json"
	FormatPrefixed Format = "prefixed"
	FormatBareID   Format = "bare-id"
)

// CheckPath is the path segment generated payload URLs carry and the
// decoder recognizes.
const CheckPath = "/attendance-check"

// IdentityRef is a decoded (or directly constructed) reference to a
// person. It is ephemeral: created per scan, discarded after resolution.
// DisplayName and ContextLabel are encode-time snapshots used only for
// fallback matching and display, never as primary keys. IssuedAt is
// informational; stale payloads are not rejected here.
type IdentityRef struct {
	Kind         Kind
	ID           string
	DisplayName  string
	ContextLabel string
	IssuedAt     time.Time
	Format       Format
}

// Codec encodes identities into scannable payload URLs and decodes
// scanned or pasted text back into identity references.
type Codec struct {
	// BaseURL is the absolute prefix of generated URLs, without a
	// trailing slash. AppMarker is the constant app= query value.
	BaseURL   string
	AppMarker string

	now func() time.Time
}

// NewCodec creates a codec that stamps payloads with the given base URL
// and app marker.
func NewCodec(baseURL, appMarker string) *Codec {
	return &Codec{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AppMarker: appMarker,
		now:       time.Now,
	}
}

// Encode builds the canonical payload URL for a person. kind and id are
// required; displayName and contextLabel may be empty and are carried
// only as fallback/display data.
func (c *Codec) Encode(kind Kind, id, displayName, contextLabel string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("qrpayload: encode requires kind %q or %q, got %q", KindStudent, KindStaff, kind)
	}
	if id == "" {
		return "", fmt.Errorf("qrpayload: encode requires a non-empty id")
	}

	q := url.Values{}
	q.Set("type", string(kind))
	q.Set("id", id)
	q.Set("name", displayName)
	q.Set("class", contextLabel)
	q.Set("timestamp", c.now().UTC().Format(time.RFC3339))
	q.Set("app", c.AppMarker)

	return c.BaseURL + CheckPath + "?" + q.Encode(), nil
}
