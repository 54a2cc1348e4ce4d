package ui

import (
	"strings"
	"testing"
)

func TestRenderStatus(t *testing.T) {
	noColor = false
	t.Cleanup(func() { noColor = false })

	for _, tc := range []struct {
		status string
		color  string
	}{
		{"PROCESSED", "38;5;114m"},
		{"FAILED", "38;5;203m"},
		{"PROCESSING", "38;5;179m"},
		{"PENDING", "38;5;245m"},
	} {
		got := RenderStatus(tc.status)
		if !strings.Contains(got, tc.color) || !strings.Contains(got, tc.status) {
			t.Errorf("RenderStatus(%q) = %q", tc.status, got)
		}
	}

	ForceNoColor()
	if got := RenderStatus("FAILED"); got != "FAILED" {
		t.Errorf("RenderStatus without color = %q", got)
	}
	if got := RenderCount(3); got != "3" {
		t.Errorf("RenderCount without color = %q", got)
	}
}

func TestColorEnabled(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty default", nil, true, true},
		{"pipe default", nil, false, false},
		{"NO_COLOR wins", map[string]string{"NO_COLOR": "1", "MENUJOBS_COLOR": "always"}, true, false},
		{"always on pipe", map[string]string{"MENUJOBS_COLOR": "always"}, false, true},
		{"never on tty", map[string]string{"MENUJOBS_COLOR": "Never"}, true, false},
		{"auto defers", map[string]string{"MENUJOBS_COLOR": "auto", "CLICOLOR_FORCE": "1"}, false, true},
		{"CLICOLOR=0", map[string]string{"CLICOLOR": "0"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := colorEnabled(getenv, tt.tty); got != tt.want {
				t.Errorf("colorEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
