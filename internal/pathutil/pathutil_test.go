package pathutil

import (
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/", home},
		{"~/netsurvey/config.yaml", filepath.Join(home, "netsurvey", "config.yaml")},
		{"~bob/config.yaml", "~bob/config.yaml"},
		{"/etc/netsurvey.yaml", "/etc/netsurvey.yaml"},
		{"relative/config.yaml", "relative/config.yaml"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigFile(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if got, want := ConfigFile("netsurvey", "config.yaml"), filepath.Join(xdg, "netsurvey", "config.yaml"); got != want {
		t.Errorf("ConfigFile with XDG = %q, want %q", got, want)
	}

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)
	if got, want := ConfigFile("netsurvey", "config.yaml"), filepath.Join(home, ".config", "netsurvey", "config.yaml"); got != want {
		t.Errorf("ConfigFile without XDG = %q, want %q", got, want)
	}
}
