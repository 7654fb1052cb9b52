// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg as indented JSON, creating the directory if needed.
func SaveRegistry(reg *ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write registry %s: %w", path, err)
	}
	return nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// ValidateInput checks raw job variables against the activity input schema.
// An activity without a schema accepts anything.
func (a *Activity) ValidateInput(variables string) error {
	if len(a.InputSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(a.InputSchema),
		gojsonschema.NewStringLoader(variables),
	)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("input validation failed: %s", strings.Join(errs, "; "))
}

// Validate checks the fields every activity needs, that ids and task types
// are unique, and that each schema compiles.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool, len(r.Activities))
	taskTypes := make(map[string]bool, len(r.Activities))
	for _, a := range r.Activities {
		switch {
		case a.ID == "":
			return fmt.Errorf("activity missing required field: id")
		case a.TaskType == "":
			return fmt.Errorf("activity %s missing required field: taskType", a.ID)
		case a.DisplayName == "":
			return fmt.Errorf("activity %s missing required field: displayName", a.ID)
		case ids[a.ID]:
			return fmt.Errorf("duplicate activity id: %s", a.ID)
		case taskTypes[a.TaskType]:
			return fmt.Errorf("duplicate task type: %s", a.TaskType)
		}
		ids[a.ID] = true
		taskTypes[a.TaskType] = true

		for name, schema := range map[string]map[string]interface{}{"input": a.InputSchema, "output": a.OutputSchema} {
			if len(schema) == 0 {
				continue
			}
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
				return fmt.Errorf("activity %s %s schema: %w", a.ID, name, err)
			}
		}
	}
	return nil
}
