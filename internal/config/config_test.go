package config

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, `
data_root: /fast/slow
caltable_root: /fast/caltables
proc_root: /fast/proc
band: 55MHz
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DataRoot != "/fast/slow" || s.Band != "55MHz" {
		t.Errorf("site = %+v", s)
	}
}

func TestLoad_MissingField(t *testing.T) {
	path := write(t, "data_root: /fast/slow\nband: 55MHz\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing roots")
	}
}
