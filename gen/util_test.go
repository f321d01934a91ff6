package gen

import (
	"testing"
)

func TestToPascalCase(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"zero_point", "ZeroPoint"},
		{"allocation_type", "AllocationType"},
		{"a", "A"},
		{"data_", "Data"},
		{"_reserved", "Reserved"},
		{"raw_const", "RawConst"},
		{"c64", "C64"},
		{"_", ""},
	}
	for _, tt := range tests {
		got := ToPascalCase(tt.input)
		if got != tt.want {
			t.Errorf("ToPascalCase(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestScopeOf(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"tflite::Interpreter::State", "tflite::Interpreter"},
		{"tflite::Interpreter", "tflite"},
		{"TfLiteTensor", ""},
	}
	for _, tt := range tests {
		if got := scopeOf(tt.input); got != tt.want {
			t.Errorf("scopeOf(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
