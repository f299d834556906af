package qrpayload

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// maxBareIDLen caps how much raw text the bare-identifier matcher will
// accept as a candidate id.
const maxBareIDLen = 128

// Decode turns scanned or pasted text into an identity reference. Wire
// formats are tried in a fixed priority order: canonical URL, JSON
// object, legacy "student:<id>"/"staff:<id>" prefix, bare identifier.
// The first matching format wins. A format that recognizes the input
// shape but finds it invalid (a check-in URL missing its id, a JSON
// object without a type) fails the decode outright rather than letting
// a later matcher misread the text. Unclassifiable input returns a
// *DecodeError listing every format tried and why each refused.
func (c *Codec) Decode(raw string) (IdentityRef, error) {
	raw = strings.TrimSpace(raw)

	derr := &DecodeError{Input: raw}
	for _, m := range matchers {
		ref, recognized, err := m.fn(raw)
		if err == nil && recognized {
			ref.Format = m.format
			return ref, nil
		}
		derr.Attempts = append(derr.Attempts, Attempt{Format: m.format, Reason: err.Error()})
		if recognized {
			// Shape matched but content is invalid; later matchers
			// would only misinterpret it.
			return IdentityRef{}, derr
		}
	}
	return IdentityRef{}, derr
}

type matcher struct {
	format Format
	fn     func(raw string) (ref IdentityRef, recognized bool, err error)
}

var matchers = []matcher{
	{FormatURL, matchURL},
	{FormatJSON, matchJSON},
	{FormatPrefixed, matchPrefixed},
	{FormatBareID, matchBareID},
}

func matchURL(raw string) (IdentityRef, bool, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return IdentityRef{}, false, fmt.Errorf("not a URL")
	}
	if !strings.Contains(u.Path, CheckPath) {
		return IdentityRef{}, true, fmt.Errorf("URL does not contain an attendance check path (%s)", CheckPath)
	}

	q := u.Query()
	kind := Kind(q.Get("type"))
	id := q.Get("id")
	switch {
	case kind == KindUnknown && id == "":
		return IdentityRef{}, true, fmt.Errorf("attendance check URL is missing the required type and id parameters")
	case id == "":
		return IdentityRef{}, true, fmt.Errorf("attendance check URL is missing the required id parameter")
	case kind == KindUnknown:
		return IdentityRef{}, true, fmt.Errorf("attendance check URL is missing the required type parameter")
	case !kind.Valid():
		return IdentityRef{}, true, fmt.Errorf("attendance check URL has unsupported type %q", kind)
	}

	return IdentityRef{
		Kind:         kind,
		ID:           id,
		DisplayName:  q.Get("name"),
		ContextLabel: q.Get("class"),
		IssuedAt:     parseIssuedAt(q.Get("timestamp")),
	}, true, nil
}

func matchJSON(raw string) (IdentityRef, bool, error) {
	if !strings.HasPrefix(raw, "{") {
		return IdentityRef{}, false, fmt.Errorf("not a JSON object")
	}
	var obj struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		Name      string `json:"name"`
		Class     string `json:"class"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return IdentityRef{}, false, fmt.Errorf("not valid JSON: %v", err)
	}

	kind := Kind(obj.Type)
	switch {
	case kind == KindUnknown && obj.ID == "":
		return IdentityRef{}, true, fmt.Errorf("JSON payload is missing the required type and id fields")
	case obj.ID == "":
		return IdentityRef{}, true, fmt.Errorf("JSON payload is missing the required id field")
	case kind == KindUnknown:
		return IdentityRef{}, true, fmt.Errorf("JSON payload is missing the required type field")
	case !kind.Valid():
		return IdentityRef{}, true, fmt.Errorf("JSON payload has unsupported type %q", kind)
	}

	return IdentityRef{
		Kind:         kind,
		ID:           obj.ID,
		DisplayName:  obj.Name,
		ContextLabel: obj.Class,
		IssuedAt:     parseIssuedAt(obj.Timestamp),
	}, true, nil
}

func matchPrefixed(raw string) (IdentityRef, bool, error) {
	for _, kind := range []Kind{KindStudent, KindStaff} {
		prefix := string(kind) + ":"
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
		if id == "" {
			return IdentityRef{}, true, fmt.Errorf("legacy %q payload has an empty id", prefix)
		}
		return IdentityRef{Kind: kind, ID: id}, true, nil
	}
	return IdentityRef{}, false, fmt.Errorf("no student:/staff: prefix")
}

func matchBareID(raw string) (IdentityRef, bool, error) {
	if raw == "" {
		return IdentityRef{}, false, fmt.Errorf("input is empty")
	}
	if len(raw) > maxBareIDLen {
		return IdentityRef{}, false, fmt.Errorf("too long for an identifier (%d bytes)", len(raw))
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return IdentityRef{}, false, fmt.Errorf("contains whitespace, not a plausible identifier")
	}
	// Kind is unknown; the resolver discovers it by trying both rosters.
	return IdentityRef{Kind: KindUnknown, ID: raw}, true, nil
}

// parseIssuedAt tolerates missing or malformed timestamps; the value is
// informational only.
func parseIssuedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
