// Package sanitizer implements the recursive JSON-Schema cleaner Component A
// of the gateway: it strips keywords the upstream rejects from a tool's
// input_schema (or a response_format schema) at every nesting depth, the
// way the teacher SDK's pkg/schema package wraps a schema for a single
// validation concern — except this one never errors, it only cleans.
package sanitizer

// rejected is the set of JSON-Schema keywords the upstream refuses.
var rejected = map[string]bool{
	"$schema":            true,
	"$id":                true,
	"$ref":               true,
	"definitions":        true,
	"title":              true,
	"examples":           true,
	"default":            true,
	"readOnly":           true,
	"writeOnly":          true,
	"additionalProperties": true,
	"minimum":            true,
	"maximum":            true,
	"exclusiveMinimum":   true,
	"exclusiveMaximum":   true,
	"multipleOf":         true,
	"pattern":            true,
	"format":             true,
	"minLength":          true,
	"maxLength":          true,
	"minItems":           true,
	"maxItems":           true,
	"uniqueItems":        true,
	"minProperties":      true,
	"maxProperties":      true,
	"patternProperties":  true,
	"dependencies":       true,
	"contentMediaType":   true,
	"contentEncoding":    true,
	"const":              true,
	"allOf":              true,
	"anyOf":              true,
	"oneOf":              true,
	"not":                true,
}

// Sanitize recursively strips every rejected keyword from a JSON-Schema
// fragment decoded into Go's generic JSON representation
// (map[string]interface{}, []interface{}, or a scalar). It never errors —
// anything that isn't an object or array passes through unchanged — and it
// never mutates the input: every level that needs a change is rebuilt into
// a fresh value.
func Sanitize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return sanitizeObject(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return value
	}
}

func sanitizeObject(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for key, val := range obj {
		if rejected[key] {
			continue
		}
		switch val.(type) {
		case map[string]interface{}, []interface{}:
			out[key] = Sanitize(val)
		default:
			out[key] = val
		}
	}
	restrictRequired(out)
	return out
}

// restrictRequired drops names from "required" that no longer appear in
// "properties" after sanitisation, and removes "required" entirely if that
// leaves it empty.
func restrictRequired(obj map[string]interface{}) {
	requiredRaw, hasRequired := obj["required"]
	propsRaw, hasProps := obj["properties"]
	if !hasRequired || !hasProps {
		return
	}

	required, ok := requiredRaw.([]interface{})
	if !ok {
		return
	}
	props, ok := propsRaw.(map[string]interface{})
	if !ok {
		return
	}

	kept := make([]interface{}, 0, len(required))
	for _, name := range required {
		nameStr, ok := name.(string)
		if !ok {
			continue
		}
		if _, present := props[nameStr]; present {
			kept = append(kept, name)
		}
	}

	if len(kept) == 0 {
		delete(obj, "required")
		return
	}
	obj["required"] = kept
}

// Validate walks a sanitised value and reports every rejected keyword that
// survived. It is used by tests, never to reject a request — Sanitize is
// total and never fails.
func Validate(value interface{}) []string {
	var found []string
	walkValidate(value, &found)
	return found
}

func walkValidate(value interface{}, found *[]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			if rejected[key] {
				*found = append(*found, key)
			}
			walkValidate(val, found)
		}
	case []interface{}:
		for _, item := range v {
			walkValidate(item, found)
		}
	}
}
