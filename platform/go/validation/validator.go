package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

const defaultCacheSize = 512

// Validator validates record payloads against compiled field definitions.
// Compiled schemas are cached per (entity type, schema fingerprint); any change to the
// field set changes the fingerprint, so a stale validator can never be served.
type Validator struct {
	mu         sync.RWMutex
	cache      map[string]*jsonschema.Schema
	order      []string
	maxEntries int
}

// NewValidator returns a validator holding at most maxEntries compiled schemas.
// A non-positive size selects the default.
func NewValidator(maxEntries int) *Validator {
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	return &Validator{
		cache:      make(map[string]*jsonschema.Schema),
		maxEntries: maxEntries,
	}
}

// Validate checks data against fields and returns the normalized value map, or a
// *apperrors.ValidationError listing one entry per offending field.
func (v *Validator) Validate(ctx context.Context, entityTypeID uuid.UUID, fields []metadata.FieldDef, data map[string]any, mode Mode) (map[string]any, error) {
	set := metadata.NewFieldSet(fields)

	document, err := normalize(data)
	if err != nil {
		return nil, &apperrors.ValidationError{Fields: []apperrors.FieldError{{Path: "", Kind: "type", Message: err.Error()}}}
	}

	var problems []apperrors.FieldError

	for key := range document {
		if _, ok := set.Lookup(key); !ok {
			problems = append(problems, apperrors.FieldError{Path: key, Kind: "unknown", Message: "field is not defined for this entity type"})
			delete(document, key)
		}
	}

	for _, f := range set.Fields() {
		value, present := document[f.Key]
		empty := !present || isEmpty(value)
		switch {
		case f.Required && empty && (mode == ModeFull || present):
			problems = append(problems, apperrors.FieldError{Path: f.Key, Kind: "required", Message: "value is required"})
			delete(document, f.Key)
		case !f.Required && present && empty:
			// Empty values of optional fields count as absent.
			document[f.Key] = nil
		}
	}

	compiled, err := v.getOrCompile(entityTypeID, set)
	if err != nil {
		return nil, err
	}

	if err := compiled.Validate(document); err != nil {
		validationErr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return nil, fmt.Errorf("schema validation: %w", err)
		}
		problems = append(problems, flattenErrors(validationErr)...)
	}
	problems = append(problems, checkDateBounds(set, document, reportedFields(problems))...)

	if len(problems) > 0 {
		sort.SliceStable(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
		return nil, &apperrors.ValidationError{Fields: problems}
	}

	return document, nil
}

func (v *Validator) getOrCompile(entityTypeID uuid.UUID, set metadata.FieldSet) (*jsonschema.Schema, error) {
	raw, hash, err := fingerprint(BuildSchema(set))
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("memory://schemas/%s/%s.json", entityTypeID, hash)

	v.mu.RLock()
	compiled, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// another goroutine may have populated the cache while we were waiting
	if compiled, ok = v.cache[key]; ok {
		return compiled, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(key, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", key, err)
	}

	newCompiled, err := compiler.Compile(key)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", key, err)
	}

	if len(v.order) >= v.maxEntries {
		oldest := v.order[0]
		v.order = v.order[1:]
		delete(v.cache, oldest)
	}
	v.cache[key] = newCompiled
	v.order = append(v.order, key)
	return newCompiled, nil
}

// Len returns the number of cached schemas.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}

// normalize round-trips data through JSON so the schema sees only JSON-native values
// (float64, string, bool, []any, map[string]any, nil).
func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON encodable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// flattenErrors collects the leaf causes of a validation error, one entry per instance location.
func flattenErrors(root *jsonschema.ValidationError) []apperrors.FieldError {
	var out []apperrors.FieldError
	seen := make(map[string]struct{})

	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		path := instancePath(e.InstanceLocation)
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, apperrors.FieldError{
			Path:    path,
			Kind:    keyword(e.KeywordLocation),
			Message: e.Message,
		})
	}
	walk(root)
	return out
}

func instancePath(location string) string {
	return strings.ReplaceAll(strings.TrimPrefix(location, "/"), "/", ".")
}

func keyword(location string) string {
	idx := strings.LastIndex(location, "/")
	if idx < 0 {
		return location
	}
	return location[idx+1:]
}

// reportedFields returns the top-level keys that already carry an error.
func reportedFields(problems []apperrors.FieldError) map[string]struct{} {
	out := make(map[string]struct{}, len(problems))
	for _, p := range problems {
		key, _, _ := strings.Cut(p.Path, ".")
		out[key] = struct{}{}
	}
	return out
}

// checkDateBounds enforces date min/max, which JSON Schema cannot express. Fields in
// skip already failed and keep their first error.
func checkDateBounds(set metadata.FieldSet, document map[string]any, skip map[string]struct{}) []apperrors.FieldError {
	var out []apperrors.FieldError
	for _, f := range set.Fields() {
		c, ok := f.Constraints.(metadata.DateConstraints)
		if !ok || (c.Min == nil && c.Max == nil) {
			continue
		}
		if _, failed := skip[f.Key]; failed {
			continue
		}
		raw, ok := document[f.Key].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			out = append(out, apperrors.FieldError{Path: f.Key, Kind: "format", Message: "value is not an ISO-8601 date-time"})
			continue
		}
		if c.Min != nil && ts.Before(*c.Min) {
			out = append(out, apperrors.FieldError{Path: f.Key, Kind: "minimum", Message: fmt.Sprintf("must not be before %s", c.Min.Format(time.RFC3339))})
		}
		if c.Max != nil && ts.After(*c.Max) {
			out = append(out, apperrors.FieldError{Path: f.Key, Kind: "maximum", Message: fmt.Sprintf("must not be after %s", c.Max.Format(time.RFC3339))})
		}
	}
	return out
}
