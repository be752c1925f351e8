package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "desk")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nport: ${SAMPLE_PORT:-8081}\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "desk" || s.Port != 8081 {
		t.Errorf("got %+v", s)
	}
	if !s.valid {
		t.Error("Validate was not called")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeFile(t, "name: x\nport: 1\nprot: 2\n")
	var s sample
	if err := Load(path, &s); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Port: 1}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "default" || !s.valid {
		t.Errorf("got %+v", s)
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	s := sample{Port: 3}
	if err := Decode(strings.NewReader(""), &s); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SET_VAR", "v")
	t.Setenv("EMPTY_VAR", "")
	tests := map[string]string{
		"${SET_VAR}":          "v",
		"$SET_VAR/x":          "v/x",
		"${UNSET_VAR_XYZ}":    "",
		"${UNSET_VAR_XYZ:-d}": "d",
		"${EMPTY_VAR:-d}":     "d",
		"${SET_VAR:-d}":       "v",
	}
	for in, want := range tests {
		if got := ExpandEnv(in); got != want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}
