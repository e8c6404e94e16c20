package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		code string
		want string
	}{
		{name: "local ten digits", in: "9876543210", code: "+91", want: "+919876543210"},
		{name: "twelve digits with country code", in: "919876543210", code: "+91", want: "+919876543210"},
		{name: "already international", in: "+447700900000", code: "+91", want: "+447700900000"},
		{name: "surrounding whitespace trimmed", in: "  9876543210 ", code: "+91", want: "+919876543210"},
		{name: "twelve digits other prefix passes through", in: "449876543210", code: "+91", want: "449876543210"},
		{name: "eleven digits passes through", in: "98765432101", code: "+91", want: "98765432101"},
		{name: "short passes through", in: "12345", code: "+91", want: "12345"},
		{name: "empty stays empty", in: "   ", code: "+91", want: ""},
		{name: "code without plus", in: "9876543210", code: "91", want: "+919876543210"},
		{name: "default code when blank", in: "9876543210", code: "", want: "+919876543210"},
		{name: "length only heuristic", in: "98765-4321", code: "+91", want: "+9198765-4321"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in, tt.code); got != tt.want {
				t.Fatalf("Normalize(%q, %q) = %q, want %q", tt.in, tt.code, got, tt.want)
			}
		})
	}
}

func TestLooksE164(t *testing.T) {
	if !LooksE164("+919876543210") {
		t.Fatal("expected +919876543210 to look dialable")
	}
	for _, bad := range []string{"", "9876543210", "+91abc", "+1", "+12345678901234567"} {
		if LooksE164(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
