package utils

import (
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  float64
	}{
		{"memory megabytes", 12.3456, 12.35},
		{"cycle seconds", 1.234, 1.23},
		{"half rounds away from zero", 0.125, 0.13},
		{"whole number", 42, 42},
		{"zero", 0, 0},
		{"sub-hundredth", 0.004, 0},
		{"negative", -1.236, -1.24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Round(tt.input); got != tt.want {
				t.Errorf("Round(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
