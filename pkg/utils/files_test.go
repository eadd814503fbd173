package utils

import (
	"path/filepath"
	"testing"
)

func TestClassName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"hello.bas", "hello"},
		{"/tmp/Star Trek.bas", "Star_Trek"},
		{"dir/my-game.v2.bas", "my_game_v2"},
		{"99bottles.bas", "_99bottles"},
		{"noext", "noext"},
		{".bas", "_"},
	}
	for _, tt := range tests {
		if got := ClassName(tt.in); got != tt.expected {
			t.Errorf("ClassName(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestClassPath(t *testing.T) {
	got, err := ClassPath("prog/game.bas", "")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.Abs(filepath.Join("prog", "game.class"))
	if got != want {
		t.Errorf("ClassPath = %q, want %q", got, want)
	}

	got, err = ClassPath("prog/game.bas", "out")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("out", "game.class") {
		t.Errorf("ClassPath with outDir = %q", got)
	}
}

func TestGetPathInfo(t *testing.T) {
	full, parent, err := GetPathInfo("a/../b/c.bas")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) || filepath.Base(full) != "c.bas" || filepath.Base(parent) != "b" {
		t.Errorf("GetPathInfo = %q, %q", full, parent)
	}
}
