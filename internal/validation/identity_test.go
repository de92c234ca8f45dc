package validation

import "testing"

func TestIsValidIdentity(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{
			name:  "typical user id",
			id:    "42",
			valid: true,
		},
		{
			name:  "large user id",
			id:    "7123456789",
			valid: true,
		},
		{
			name:  "leading zero",
			id:    "042",
			valid: false,
		},
		{
			name:  "negative",
			id:    "-42",
			valid: false,
		},
		{
			name:  "contains letters",
			id:    "12a4",
			valid: false,
		},
		{
			name:  "non-ascii digits",
			id:    "١٢٣",
			valid: false,
		},
		{
			name:  "too long",
			id:    "12345678901234567890",
			valid: false,
		},
		{
			name:  "empty string",
			id:    "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidIdentity(tt.id)
			if got != tt.valid {
				t.Fatalf("IsValidIdentity(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}
