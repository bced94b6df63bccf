package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location
// context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// stepIDRe matches the identifier charset shared with step markers.
var stepIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateFile performs the full 3-phase validation pipeline on a
// guide-set config file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Config, []*ValidationError) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(cfg)...)
	allErrors = append(allErrors, ValidateDomain(cfg)...)
	if len(allErrors) > 0 {
		return cfg, allErrors
	}
	return cfg, nil
}

// validateSemantic validates the config against the generated JSON
// Schema.
func validateSemantic(cfg *Config) []*ValidationError {
	data, err := json.Marshal(cfg)
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("marshal for schema validation: %v", err),
			Severity: "error",
		}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("generate schema: %v", err),
			Severity: "error",
		}}
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal schema: %v", err),
			Severity: "error",
		}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("guides-v1.json", schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("add schema resource: %v", err),
			Severity: "error",
		}}
	}
	sch, err := c.Compile("guides-v1.json")
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("compile schema: %v", err),
			Severity: "error",
		}}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal document: %v", err),
			Severity: "error",
		}}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation
// errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
func ValidateDomain(cfg *Config) []*ValidationError {
	var errs []*ValidationError

	if cfg.APIVersion != "docstep/v1" {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "apiVersion",
			Message:  fmt.Sprintf("unrecognized apiVersion %q, expected %q", cfg.APIVersion, "docstep/v1"),
			Severity: "error",
		})
	}

	seen := make(map[string]bool)
	for i, def := range cfg.Checks {
		path := fmt.Sprintf("checks[%d]", i)
		if def.Step == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".step",
				Message:  "check requires a step id",
				Severity: "error",
			})
		} else if !stepIDRe.MatchString(def.Step) {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".step",
				Message:  fmt.Sprintf("invalid step id %q: letters, digits, hyphen, underscore only", def.Step),
				Severity: "error",
			})
		} else if seen[def.Step] {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".step",
				Message:  fmt.Sprintf("duplicate check for step %q", def.Step),
				Severity: "error",
			})
		}
		seen[def.Step] = true

		if def.Probe == "" && def.FileExists == "" && def.Command == "" && def.Expect == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path,
				Message:  "check requires at least one of probe, file_exists, command, expect",
				Severity: "error",
			})
		}
	}

	if cfg.VM != nil {
		if cfg.VM.Name == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "vm.name",
				Message:  "vm requires a name",
				Severity: "error",
			})
		}
		if cfg.VM.Image == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "vm.image",
				Message:  "vm requires a base image URL or path",
				Severity: "error",
			})
		}
		if cfg.VM.ReachInterval != "" {
			if _, err := time.ParseDuration(cfg.VM.ReachInterval); err != nil {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     "vm.reach_interval",
					Message:  fmt.Sprintf("invalid duration %q", cfg.VM.ReachInterval),
					Severity: "error",
				})
			}
		}
	}

	return errs
}
