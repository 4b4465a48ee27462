// Package catalog loads the message template catalog and renders
// user-facing text with strict variable binding.
//
// The catalog source is a flat JSON object of message id -> template string.
// Templates reference variables as {{name}}; rendering fails before any
// substitution is attempted when a referenced variable is unbound.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Error variables for catalog misconfiguration. These are programmer errors,
// not user input errors, and callers are expected to fail loudly on them.
var (
	ErrCatalogNotFound   = errors.New("catalog file does not exist")
	ErrCatalogExtension  = errors.New("catalog file extension is incorrect")
	ErrCatalogFormat     = errors.New("catalog file is not a flat string-to-string JSON object")
	ErrMessageIDNotFound = errors.New("message id was not found in the catalog")
)

// MissingVariablesError reports template variables referenced by a message
// that were absent from the render bindings.
type MissingVariablesError struct {
	MessageID string
	Variables []string
}

func (e *MissingVariablesError) Error() string {
	quoted := make([]string, len(e.Variables))
	for i, v := range e.Variables {
		quoted[i] = "`" + v + "`"
	}
	return fmt.Sprintf("message %s template is missing variables: %s", e.MessageID, strings.Join(quoted, ", "))
}

// placeholderPattern matches {{name}} references, tolerating inner spaces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Catalog is an immutable message-id -> template mapping. Load it once at
// startup; there is no file watching.
type Catalog struct {
	messages map[string]string
}

// New builds a catalog from an in-memory mapping. Used by tests and by
// callers that source templates from somewhere other than a file.
func New(messages map[string]string) *Catalog {
	m := make(map[string]string, len(messages))
	for id, tmpl := range messages {
		m[id] = tmpl
	}
	return &Catalog{messages: m}
}

// Load reads and parses a catalog from a .json file.
func Load(path string) (*Catalog, error) {
	if _, err := os.Stat(path); err != nil {
		slog.Error("Catalog file not found", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
	}
	if filepath.Ext(path) != ".json" {
		slog.Error("Catalog file has wrong extension", "path", path)
		return nil, fmt.Errorf("%w: %s", ErrCatalogExtension, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Catalog file read failed", "path", path, "error", err)
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		slog.Error("Catalog file parse failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCatalogFormat, err)
	}
	slog.Debug("Catalog loaded", "path", path, "messages", len(messages))
	return &Catalog{messages: messages}, nil
}

// Has reports whether the catalog contains the given message id.
func (c *Catalog) Has(messageID string) bool {
	_, ok := c.messages[messageID]
	return ok
}

// RequiredVariables statically parses the template body and returns the set
// of variable names it references, duplicates collapsed. The template is not
// executed.
func (c *Catalog) RequiredVariables(messageID string) (map[string]struct{}, error) {
	tmpl, ok := c.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageIDNotFound, messageID)
	}
	vars := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		vars[m[1]] = struct{}{}
	}
	return vars, nil
}

// Render substitutes every placeholder of the message with its bound value.
// Rendering is strict: missing bindings are detected up front and reported
// via MissingVariablesError, never silently left blank.
func (c *Catalog) Render(messageID string, bindings map[string]string) (string, error) {
	tmpl, ok := c.messages[messageID]
	if !ok {
		slog.Error("Catalog render failed: unknown message id", "message_id", messageID)
		return "", fmt.Errorf("%w: %s", ErrMessageIDNotFound, messageID)
	}

	required, err := c.RequiredVariables(messageID)
	if err != nil {
		return "", err
	}
	var missing []string
	for name := range required {
		if _, bound := bindings[name]; !bound {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		slog.Error("Catalog render failed: missing variables", "message_id", messageID, "missing", missing)
		return "", &MissingVariablesError{MessageID: messageID, Variables: missing}
	}

	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return bindings[name]
	})
	return out, nil
}

// MustRender renders a message that takes no unbound variables and panics on
// failure. Reserved for templates whose bindings are fixed at compile time;
// a failure here is a catalog misconfiguration.
func (c *Catalog) MustRender(messageID string, bindings map[string]string) string {
	out, err := c.Render(messageID, bindings)
	if err != nil {
		panic(fmt.Sprintf("catalog: render %s: %v", messageID, err))
	}
	return out
}
