package dtc

import "testing"

func TestDescribe_KnownCode(t *testing.T) {
	t.Parallel()

	desc := Describe("P0420")
	if desc != "Catalyst System Efficiency Below Threshold (Bank 1)" {
		t.Errorf("Describe(P0420) = %q", desc)
	}
}

func TestDescribe_NormalizesInput(t *testing.T) {
	t.Parallel()

	if Describe("  p0171 ") != "System Too Lean (Bank 1)" {
		t.Errorf("Describe should trim and uppercase input")
	}
}

func TestDescribe_GenericFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{"P1234", "Powertrain Diagnostic Trouble Code P1234"},
		{"B0001", "Body Diagnostic Trouble Code B0001"},
		{"C1122", "Chassis Diagnostic Trouble Code C1122"},
		{"U3000", "Network/Communication Diagnostic Trouble Code U3000"},
	}

	for _, tt := range tests {
		if got := Describe(tt.code); got != tt.want {
			t.Errorf("Describe(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestDescribe_Malformed(t *testing.T) {
	t.Parallel()

	if Describe("") != "Unknown code" {
		t.Errorf("empty code should be unknown")
	}
	if Describe("P04") != "Unknown code" {
		t.Errorf("short code should be unknown")
	}
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	valid := []string{"P0420", "B1234", "C0ABC", "U0100", "p0300"}
	for _, code := range valid {
		if !IsValid(code) {
			t.Errorf("IsValid(%s) = false, want true", code)
		}
	}

	invalid := []string{"", "X0420", "P042", "P04200", "P04G0"}
	for _, code := range invalid {
		if IsValid(code) {
			t.Errorf("IsValid(%s) = true, want false", code)
		}
	}
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{"P0420", "Powertrain (Engine/Transmission)"},
		{"b1234", "Body (Interior/Exterior)"},
		{"C0035", "Chassis (Brakes/Steering/Suspension)"},
		{"U0100", "Network/Communication"},
		{"", "Unknown"},
		{"X9999", "Unknown System"},
	}

	for _, tt := range tests {
		if got := Categorize(tt.code); got != tt.want {
			t.Errorf("Categorize(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{"P0300", SeverityCritical},
		{"P0562", SeverityCritical},
		{"P0420", SeverityModerate},
		{"U0100", SeverityModerate},
		{"P0700", SeverityLow},
		{"B1234", SeverityLow},
	}

	for _, tt := range tests {
		if got := Severity(tt.code); got != tt.want {
			t.Errorf("Severity(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
