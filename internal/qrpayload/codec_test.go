package qrpayload

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testCodec() *Codec {
	c := NewCodec("https://attendance.example.edu/", "rollcall")
	c.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }
	return c
}

func TestEncode(t *testing.T) {
	c := testCodec()

	payload, err := c.Encode(KindStudent, "s1", "Ann Lee", "c1")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	u, err := url.Parse(payload)
	if err != nil {
		t.Fatalf("payload is not a URL: %v", err)
	}
	if u.Path != "/attendance-check" {
		t.Errorf("path = %q, want /attendance-check", u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"type":      "student",
		"id":        "s1",
		"name":      "Ann Lee",
		"class":     "c1",
		"timestamp": "2024-05-01T08:30:00Z",
		"app":       "rollcall",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
}

func TestEncodeValidation(t *testing.T) {
	c := testCodec()

	if _, err := c.Encode(KindUnknown, "s1", "", ""); err == nil {
		t.Error("Encode accepted an empty kind")
	}
	if _, err := c.Encode(Kind("teacher"), "s1", "", ""); err == nil {
		t.Error("Encode accepted an unsupported kind")
	}
	if _, err := c.Encode(KindStudent, "", "", ""); err == nil {
		t.Error("Encode accepted an empty id")
	}
}

func TestEncodeURLEncodesValues(t *testing.T) {
	c := testCodec()

	payload, err := c.Encode(KindStaff, "x 1", "Grace O'Neil & co", "Math/Sci")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(payload, "Grace O'Neil & co") {
		t.Error("name was not URL-encoded")
	}

	ref, err := c.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ref.ID != "x 1" || ref.DisplayName != "Grace O'Neil & co" || ref.ContextLabel != "Math/Sci" {
		t.Errorf("round-trip lost values: %+v", ref)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	c := testCodec()

	payload, err := c.Encode(KindStudent, "s1", "Ann Lee", "c1")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	ref, err := c.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ref.Kind != KindStudent || ref.ID != "s1" {
		t.Errorf("round-trip kind/id = %s/%s, want student/s1", ref.Kind, ref.ID)
	}
	if ref.DisplayName != "Ann Lee" {
		t.Errorf("DisplayName = %q, want Ann Lee", ref.DisplayName)
	}
	if ref.Format != FormatURL {
		t.Errorf("Format = %s, want %s", ref.Format, FormatURL)
	}
	if !ref.IssuedAt.Equal(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("IssuedAt = %v", ref.IssuedAt)
	}
}

func TestDecodeFormats(t *testing.T) {
	c := testCodec()

	cases := []struct {
		name   string
		raw    string
		kind   Kind
		id     string
		format Format
	}{
		{
			name:   "canonical URL",
			raw:    "https://attendance.example.edu/attendance-check?type=staff&id=t42&name=Bo+Li&class=Science&timestamp=2024-05-01T08:30:00Z&app=rollcall",
			kind:   KindStaff,
			id:     "t42",
			format: FormatURL,
		},
		{
			name:   "JSON object",
			raw:    `{"type":"student","id":"s1","name":"Ann Lee","class":"c1","timestamp":"2024-05-01T08:30:00Z"}`,
			kind:   KindStudent,
			id:     "s1",
			format: FormatJSON,
		},
		{
			name:   "JSON object minimal",
			raw:    `{"type":"staff","id":"t42"}`,
			kind:   KindStaff,
			id:     "t42",
			format: FormatJSON,
		},
		{
			name:   "legacy student prefix",
			raw:    "student:s1",
			kind:   KindStudent,
			id:     "s1",
			format: FormatPrefixed,
		},
		{
			name:   "legacy staff prefix",
			raw:    "staff:t42",
			kind:   KindStaff,
			id:     "t42",
			format: FormatPrefixed,
		},
		{
			name:   "bare identifier",
			raw:    "s1",
			kind:   KindUnknown,
			id:     "s1",
			format: FormatBareID,
		},
		{
			name:   "surrounding whitespace trimmed",
			raw:    "  staff:t42\n",
			kind:   KindStaff,
			id:     "t42",
			format: FormatPrefixed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := c.Decode(tc.raw)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if ref.Kind != tc.kind {
				t.Errorf("Kind = %q, want %q", ref.Kind, tc.kind)
			}
			if ref.ID != tc.id {
				t.Errorf("ID = %q, want %q", ref.ID, tc.id)
			}
			if ref.Format != tc.format {
				t.Errorf("Format = %q, want %q", ref.Format, tc.format)
			}
		})
	}
}

func TestDecodeURLMissingFields(t *testing.T) {
	c := testCodec()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "missing both",
			raw:  "https://attendance.example.edu/attendance-check?app=rollcall",
			want: "type and id",
		},
		{
			name: "missing id",
			raw:  "https://attendance.example.edu/attendance-check?type=student",
			want: "id parameter",
		},
		{
			name: "missing type",
			raw:  "https://attendance.example.edu/attendance-check?id=s1",
			want: "type parameter",
		},
		{
			name: "bad type",
			raw:  "https://attendance.example.edu/attendance-check?type=parent&id=s1",
			want: "unsupported type",
		},
		{
			name: "unrelated URL",
			raw:  "https://example.com/some/page",
			want: "attendance check path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decode(tc.raw)
			var derr *DecodeError
			if !errors.As(err, &derr) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDecodeJSONMissingFields(t *testing.T) {
	c := testCodec()

	_, err := c.Decode(`{"name":"Ann Lee"}`)
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if !strings.Contains(err.Error(), "type and id") {
		t.Errorf("error %q does not mention the missing fields", err)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	c := testCodec()

	_, err := c.Decode("this is just some text someone scanned")
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}

	// The attempt trail covers every format so the UI can explain what
	// was tried.
	if len(derr.Attempts) != 4 {
		t.Fatalf("attempts = %d, want 4", len(derr.Attempts))
	}
	wantFormats := []Format{FormatURL, FormatJSON, FormatPrefixed, FormatBareID}
	for i, f := range wantFormats {
		if derr.Attempts[i].Format != f {
			t.Errorf("attempt %d format = %s, want %s", i, derr.Attempts[i].Format, f)
		}
		if derr.Attempts[i].Reason == "" {
			t.Errorf("attempt %d has no reason", i)
		}
	}
}

func TestDecodeEmptyAndOversized(t *testing.T) {
	c := testCodec()

	if _, err := c.Decode("   "); err == nil {
		t.Error("Decode accepted whitespace-only input")
	}
	if _, err := c.Decode(strings.Repeat("x", 200)); err == nil {
		t.Error("Decode accepted an oversized bare identifier")
	}
}

func TestDecodeLegacyEmptyID(t *testing.T) {
	c := testCodec()

	_, err := c.Decode("student:")
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if !strings.Contains(err.Error(), "empty id") {
		t.Errorf("error %q does not mention the empty id", err)
	}
}

func TestDecodeIgnoresBadTimestamp(t *testing.T) {
	c := testCodec()

	ref, err := c.Decode(`{"type":"student","id":"s1","timestamp":"yesterday"}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !ref.IssuedAt.IsZero() {
		t.Errorf("IssuedAt = %v, want zero for malformed timestamp", ref.IssuedAt)
	}
}
