package realtime

import (
	"strings"
	"testing"
)

func TestUpstreamURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{
			name:     "https becomes wss",
			endpoint: "https://example.openai.azure.com",
			want:     "wss://example.openai.azure.com/openai/realtime?api-version=2025-04-01-preview&deployment=gpt-4o-realtime",
		},
		{
			name:     "http becomes ws",
			endpoint: "http://localhost:8080",
			want:     "ws://localhost:8080/openai/realtime?api-version=2025-04-01-preview&deployment=gpt-4o-realtime",
		},
		{
			name:     "trailing slash trimmed",
			endpoint: "https://example.openai.azure.com/",
			want:     "wss://example.openai.azure.com/openai/realtime?api-version=2025-04-01-preview&deployment=gpt-4o-realtime",
		},
		{
			name:     "wss passes through",
			endpoint: "wss://example.openai.azure.com",
			want:     "wss://example.openai.azure.com/openai/realtime?api-version=2025-04-01-preview&deployment=gpt-4o-realtime",
		},
		{
			name:     "bad scheme rejected",
			endpoint: "ftp://example.com",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := upstreamURL(UpstreamConfig{
				Endpoint:   tt.endpoint,
				Deployment: "gpt-4o-realtime",
				APIVersion: "2025-04-01-preview",
			})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("upstreamURL = %q, want %q", got, tt.want)
			}
			if !strings.Contains(got, "deployment=gpt-4o-realtime") {
				t.Errorf("deployment missing from %q", got)
			}
		})
	}
}
