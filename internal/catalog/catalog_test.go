package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeCatalogFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write catalog file: %v", err)
	}
	return path
}

func exampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := writeCatalogFile(t, "example.json", `
	{
		"id_1": "Hello, {{user}}",
		"id_2": "Hello, {{another_user}}"
	}
	`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	return c
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("random_file_123.json")
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Errorf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestLoadWrongExtension(t *testing.T) {
	path := writeCatalogFile(t, "some_file.r", "{}")
	_, err := Load(path)
	if !errors.Is(err, ErrCatalogExtension) {
		t.Errorf("expected ErrCatalogExtension, got %v", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeCatalogFile(t, "broken.json", `{"id_1": ["not", "a", "string"]}`)
	_, err := Load(path)
	if !errors.Is(err, ErrCatalogFormat) {
		t.Errorf("expected ErrCatalogFormat, got %v", err)
	}
}

func TestRenderUnknownMessageID(t *testing.T) {
	c := exampleCatalog(t)
	_, err := c.Render("msg_3", nil)
	if !errors.Is(err, ErrMessageIDNotFound) {
		t.Errorf("expected ErrMessageIDNotFound, got %v", err)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	c := exampleCatalog(t)
	_, err := c.Render("id_2", map[string]string{})
	var missingErr *MissingVariablesError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected MissingVariablesError, got %v", err)
	}
	if !reflect.DeepEqual(missingErr.Variables, []string{"another_user"}) {
		t.Errorf("expected missing [another_user], got %v", missingErr.Variables)
	}
}

func TestRender(t *testing.T) {
	c := exampleCatalog(t)
	out, err := c.Render("id_1", map[string]string{"user": "user"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello, user" {
		t.Errorf("expected %q, got %q", "Hello, user", out)
	}
}

func TestRequiredVariables(t *testing.T) {
	c := New(map[string]string{
		"multi": "{{a}} and {{ b }} and {{a}} again, no {{vars}} left",
		"plain": "no variables here",
	})

	vars, err := c.RequiredVariables("multi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]struct{}{"a": {}, "b": {}, "vars": {}}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("expected %v, got %v", want, vars)
	}

	vars, err = c.RequiredVariables("plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("expected no variables, got %v", vars)
	}

	if _, err := c.RequiredVariables("absent"); !errors.Is(err, ErrMessageIDNotFound) {
		t.Errorf("expected ErrMessageIDNotFound, got %v", err)
	}
}

func TestRenderExtraBindingsIgnored(t *testing.T) {
	c := New(map[string]string{"id": "value is {{v}}"})
	out, err := c.Render("id", map[string]string{"v": "42", "unused": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "value is 42" {
		t.Errorf("unexpected render output %q", out)
	}
}
