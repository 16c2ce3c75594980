package verify

import "testing"

func TestDecodePayload(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		wantToken string
		wantDate  string
		wantErr   bool
	}{
		{"plain", "S1001|2026-03-09", "S1001", "2026-03-09", false},
		{"spaced", "  S1001 | 2026-03-09 ", "S1001", "2026-03-09", false},
		{"missing separator", "S1001", "", "", true},
		{"empty token", "|2026-03-09", "", "", true},
		{"empty date", "S1001|", "", "", true},
		{"bad date", "S1001|03/09/2026", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, date, err := DecodePayload(tc.payload)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("DecodePayload(%q) = %q, %q, want error", tc.payload, token, date)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePayload(%q): %v", tc.payload, err)
			}
			if token != tc.wantToken || date != tc.wantDate {
				t.Fatalf("DecodePayload(%q) = %q, %q, want %q, %q", tc.payload, token, date, tc.wantToken, tc.wantDate)
			}
		})
	}
}

func TestParseMealType(t *testing.T) {
	for _, s := range []string{"breakfast", "LUNCH", " dinner "} {
		if _, err := ParseMealType(s); err != nil {
			t.Errorf("ParseMealType(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "brunch", "supper"} {
		if _, err := ParseMealType(s); err == nil {
			t.Errorf("ParseMealType(%q) accepted", s)
		}
	}
}
