package realtime

import (
	"strings"
	"testing"
)

func TestApplySSMLFormatting(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantWrap bool
	}{
		{name: "plain text gets wrapped", input: "Hello there", wantWrap: true},
		{name: "existing ssml untouched", input: "<speak>Hi</speak>", wantWrap: false},
		{name: "empty stays empty", input: "", wantWrap: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applySSMLFormatting(tt.input)
			wrapped := strings.HasPrefix(got, "<speak>")
			if tt.wantWrap && !wrapped {
				t.Errorf("expected SSML wrapping, got %q", got)
			}
			if !tt.wantWrap && got != tt.input {
				t.Errorf("input should be untouched, got %q", got)
			}
			if tt.wantWrap && !strings.Contains(got, tt.input) {
				t.Errorf("wrapped output lost the original text: %q", got)
			}
		})
	}
}

func TestIsValidContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{name: "normal sentence", content: "What is my balance?", want: true},
		{name: "too short", content: "ok", want: false},
		{name: "filler word", content: "hmm", want: false},
		{name: "filler with whitespace", content: "  um  ", want: false},
		{name: "repeated character", content: "mmmmmm", want: false},
		{name: "three letter word", content: "yes", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidContent(tt.content); got != tt.want {
				t.Errorf("isValidContent(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestIsLowConfidenceInput(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		confidence float64
		want       bool
	}{
		{name: "high confidence long input", content: "what are the opening hours", confidence: 0.9, want: false},
		{name: "very low confidence", content: "what are the opening hours", confidence: 0.2, want: true},
		{name: "medium confidence short input", content: "hours?", confidence: 0.45, want: true},
		{name: "medium confidence long input", content: "what are the opening hours", confidence: 0.45, want: false},
		{name: "explicit repeat request", content: "can you say that again please", confidence: 0.95, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLowConfidenceInput(tt.content, tt.confidence); got != tt.want {
				t.Errorf("isLowConfidenceInput(%q, %v) = %v, want %v", tt.content, tt.confidence, got, tt.want)
			}
		})
	}
}
