package identity

import "testing"

func TestKeyRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		id   Identity
		key  string
	}{
		{"User", User("42"), "user:42"},
		{"Device", Device("ab12"), "device:ab12"},
		{"IDWithColon", User("tenant:7"), "user:tenant:7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.id.Key(); got != tc.key {
				t.Fatalf("Key() = %q, expected %q", got, tc.key)
			}
			if got := ParseKey(tc.key); got != tc.id {
				t.Fatalf("ParseKey(%q) = %+v, expected %+v", tc.key, got, tc.id)
			}
		})
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "user:", "device:", "user", "session:42", ":42"} {
		if got := ParseKey(key); !got.IsZero() {
			t.Errorf("ParseKey(%q) = %+v, expected zero identity", key, got)
		}
	}
}

func TestAuthenticated(t *testing.T) {
	if !User("42").Authenticated() {
		t.Error("user identity should be authenticated")
	}
	if Device("ab12").Authenticated() {
		t.Error("device identity should not be authenticated")
	}
	if (Identity{}).Authenticated() {
		t.Error("zero identity should not be authenticated")
	}
}

func TestZeroKeyIsEmpty(t *testing.T) {
	if key := (Identity{}).Key(); key != "" {
		t.Errorf("zero identity key %q, expected empty", key)
	}
}
