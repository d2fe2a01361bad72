package jsonschema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const querySchema = `{
	"type": "object",
	"properties": {
		"data": { "type": "array" },
		"rowCount": { "type": "integer", "minimum": 0 }
	},
	"required": ["data"]
}`

func TestValidate(t *testing.T) {
	schema, err := Compile(querySchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name      string
		body      string
		wantValid bool
	}{
		{"valid", `{"data": [{"COUNT": 12}], "rowCount": 1}`, true},
		{"missing required", `{"rowCount": 1}`, false},
		{"wrong type", `{"data": "rows"}`, false},
		{"negative count", `{"data": [], "rowCount": -1}`, false},
		{"not json", `<html>502 Bad Gateway</html>`, false},
		{"empty body", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := schema.Validate([]byte(tt.body))
			if valid := len(errs) == 0; valid != tt.wantValid {
				t.Errorf("Validate() valid = %v, want %v (errors: %v)", valid, tt.wantValid, errs)
			}
		})
	}
}

func TestValidate_ReportsLocation(t *testing.T) {
	schema, err := Compile(querySchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	errs := schema.Validate([]byte(`{"data": [], "rowCount": "one"}`))
	if len(errs) == 0 {
		t.Fatal("Validate() returned no errors")
	}
	if !strings.Contains(errs.Error(), "/rowCount") {
		t.Errorf("errors %q do not mention /rowCount", errs.Error())
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile(`{"type": 12}`); err == nil {
		t.Error("Compile() with invalid schema should fail")
	}
	if _, err := Compile(`not json`); err == nil {
		t.Error("Compile() with non-JSON schema should fail")
	}
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "count.json")
	if err := os.WriteFile(path, []byte(querySchema), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := CompileFile(path); err != nil {
		t.Errorf("CompileFile() error = %v", err)
	}
	if _, err := CompileFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("CompileFile() on a missing file should fail")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "" {
		t.Errorf("empty Error() = %q, want empty", empty.Error())
	}

	errs := ValidationErrors{os.ErrNotExist, os.ErrClosed}
	if got := errs.Error(); !strings.Contains(got, "; ") {
		t.Errorf("Error() = %q, want errors joined with '; '", got)
	}
}
