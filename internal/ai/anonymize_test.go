package ai

import "testing"

func TestAnonymize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ssn 123-45-6789", "ssn [SSN]"},
		{"call 555.123.4567 now", "call [PHONE] now"},
		{"mail a.b@medic.mil", "mail [EMAIL]"},
		{"seen 12/03/2024", "seen [DATE]"},
		{"id AB12345678", "id [MIL_ID]"},
		{"mrn: 998877", "[MRN]"},
		{"John Smith has chest pain", "[NAME] has chest pain"},
		{"no identifiers here", "no identifiers here"},
	}
	for _, tc := range cases {
		if got := Anonymize(tc.in); got != tc.want {
			t.Errorf("Anonymize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
