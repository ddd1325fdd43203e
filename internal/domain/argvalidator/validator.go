package argvalidator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/policy"
)

// cacheKey identifies one compiled schema: the policy path, the tool name
// (policies bundle one schema per tool), and the schema content's sha256 so
// an edited policy file invalidates its own cache entries without touching
// unrelated ones.
type cacheKey struct {
	path     string
	tool     string
	contentSHA string
}

// Validator compiles and validates tool-call arguments against the
// per-tool JSON-Schemas declared in a Policy's Tools.RequireArgs. Compiled
// schemas are cached so repeated checks against the same policy content are
// allocation-free after the first call.
type Validator struct {
	cache *lru.Cache[cacheKey, *jsonschema.Schema]
}

// NewValidator creates a Validator with an LRU cache bounded to maxEntries
// compiled schemas.
func NewValidator(maxEntries int) (*Validator, error) {
	cache, err := lru.New[cacheKey, *jsonschema.Schema](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &Validator{cache: cache}, nil
}

// Validate checks args against the JSON-Schema policy declares for
// toolName, identified by policyPath (used only as a cache-key component;
// the schema content itself comes from pol.Tools.RequireArgs).
func (v *Validator) Validate(policyPath string, pol *policy.Policy, toolName string, args map[string]any) Verdict {
	schemaDoc, ok := pol.Tools.RequireArgs[toolName]
	if !ok {
		return blocked(diagnostic.EPolicyMissingTool, []Violation{{
			Path:       "",
			Constraint: "tool_defined",
			Message:    fmt.Sprintf("tool %q not defined in policy", toolName),
		}})
	}

	schema, err := v.compile(policyPath, toolName, schemaDoc)
	if err != nil {
		return blocked(diagnostic.ESchemaCompile, []Violation{{
			Path:       "",
			Constraint: "schema_compile",
			Message:    err.Error(),
		}})
	}

	if err := schema.Validate(toInterface(args)); err != nil {
		return blocked(diagnostic.EArgSchema, violationsFrom(err))
	}
	return allowed()
}

// compile returns the cached *jsonschema.Schema for (policyPath, toolName,
// sha256(schemaDoc)), compiling and inserting it on a cache miss.
func (v *Validator) compile(policyPath, toolName string, schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(schemaDoc)
	key := cacheKey{path: policyPath, tool: toolName, contentSHA: hex.EncodeToString(sum[:])}

	if schema, ok := v.cache.Get(key); ok {
		return schema, nil
	}

	resourceURL := fmt.Sprintf("mem://%s#%s", policyPath, toolName)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, bytes.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache.Add(key, schema)
	return schema, nil
}

// toInterface round-trips args through JSON so map values (numbers,
// nested objects) match the representation jsonschema.Schema.Validate
// expects (the same shapes json.Unmarshal into interface{} would produce).
func toInterface(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}

// violationsFrom flattens a jsonschema.ValidationError tree into the flat
// {path, constraint, message} shape the Verdict contract requires.
func violationsFrom(err error) []Violation {
	valErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{{Constraint: "schema", Message: err.Error()}}
	}

	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Violation{
				Path:       e.InstanceLocation,
				Constraint: e.KeywordLocation,
				Message:    e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(valErr)
	return out
}
