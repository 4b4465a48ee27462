package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"yes with spaces", "  yes  ", false, true},
		{"on uppercase", "ON", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "off", true, false},
		{"garbage uses default", "maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("STATBOT_TEST_BOOL", tt.value)
			}
			if got := ParseBoolEnv("STATBOT_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("STATBOT_TEST_FLOAT", "123.5")
	if got := ParseFloatEnv("STATBOT_TEST_FLOAT", 1); got != 123.5 {
		t.Errorf("expected 123.5, got %v", got)
	}
	t.Setenv("STATBOT_TEST_FLOAT", "not-a-number")
	if got := ParseFloatEnv("STATBOT_TEST_FLOAT", 7.5); got != 7.5 {
		t.Errorf("expected default 7.5, got %v", got)
	}
	if got := ParseFloatEnv("STATBOT_TEST_FLOAT_UNSET", 2); got != 2 {
		t.Errorf("expected default 2, got %v", got)
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("STATBOT_TEST_INT", " 8081 ")
	if got := ParseIntEnv("STATBOT_TEST_INT", 8080); got != 8081 {
		t.Errorf("expected 8081, got %v", got)
	}
	t.Setenv("STATBOT_TEST_INT", "eight")
	if got := ParseIntEnv("STATBOT_TEST_INT", 8080); got != 8080 {
		t.Errorf("expected default 8080, got %v", got)
	}
}
