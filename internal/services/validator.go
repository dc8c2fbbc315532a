package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/Lllllllleong/iotloader/internal/models"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseLoaderOutput decodes and validates raw model output. Every structural
// problem is reported at once in a *SchemaValidationError; unknown keys are
// ignored.
func ParseLoaderOutput(raw string) (*models.LoaderOutput, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &SchemaValidationError{Issues: []SchemaIssue{{Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &SchemaValidationError{Issues: []SchemaIssue{{Message: "invalid JSON: unexpected data after top-level value"}}}
	}

	root, ok := tree.(map[string]any)
	if !ok {
		return nil, &SchemaValidationError{Issues: []SchemaIssue{{Message: fmt.Sprintf("expected a JSON object, got %s", jsonType(tree))}}}
	}

	v := &schemaChecker{}
	v.checkRoot(root)
	if len(v.issues) > 0 {
		return nil, &SchemaValidationError{Issues: v.issues}
	}

	var out models.LoaderOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &SchemaValidationError{Issues: []SchemaIssue{{Message: fmt.Sprintf("failed to decode loader output: %v", err)}}}
	}
	out.Normalize()
	return &out, nil
}

type schemaChecker struct {
	issues []SchemaIssue
}

func (c *schemaChecker) addf(path, format string, args ...any) {
	c.issues = append(c.issues, SchemaIssue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *schemaChecker) checkRoot(root map[string]any) {
	c.requireString(root, "", "agreement_name", false)
	c.stringList(root, "", "standards_used", true)
	c.stringList(root, "", "missing_fields", false)
	c.optionalString(root, "", "notes")

	if mappings, ok := c.list(root, "", "mappings", true); ok {
		for i, item := range mappings {
			path := fmt.Sprintf("mappings[%d]", i)
			obj, ok := item.(map[string]any)
			if !ok {
				c.addf(path, "expected object, got %s", jsonType(item))
				continue
			}
			c.checkMapping(path, obj)
		}
	}
	if plans, ok := c.list(root, "", "excel_outputs", false); ok {
		for i, item := range plans {
			path := fmt.Sprintf("excel_outputs[%d]", i)
			obj, ok := item.(map[string]any)
			if !ok {
				c.addf(path, "expected object, got %s", jsonType(item))
				continue
			}
			c.checkPlan(path, obj)
		}
	}
}

func (c *schemaChecker) checkMapping(path string, m map[string]any) {
	c.requireString(m, path, "clause_id", false)
	c.requireString(m, path, "clause_text", false)

	if v, ok := m["matched_standard"]; ok && v != nil {
		if _, isStr := v.(string); !isStr {
			c.addf(join(path, "matched_standard"), "expected string or null, got %s", jsonType(v))
		}
	}
	if conf, ok := c.requireNumber(m, path, "confidence"); ok && (conf < 0 || conf > 1) {
		c.addf(join(path, "confidence"), "must be between 0 and 1, got %v", conf)
	}
	if v, ok := m["loader_fields"]; ok && v != nil {
		if _, isObj := v.(map[string]any); !isObj {
			c.addf(join(path, "loader_fields"), "expected object, got %s", jsonType(v))
		}
	}
}

func (c *schemaChecker) checkPlan(path string, m map[string]any) {
	if dir, ok := c.requireString(m, path, "direction", true); ok &&
		dir != models.DirectionTapIn && dir != models.DirectionTapOut {
		c.addf(join(path, "direction"), "must be %q or %q, got %q", models.DirectionTapIn, models.DirectionTapOut, dir)
	}
	c.requireString(m, path, "client_tadig", true)
	c.requireString(m, path, "partner_tadig", true)
	c.requireString(m, path, "currency", true)
	c.requireString(m, path, "filename", true)

	start, startOK := c.date(m, path, "start_date")
	end, endOK := c.date(m, path, "end_date")
	if startOK && endOK && start.After(end) {
		c.addf(join(path, "end_date"), "must not be before start_date")
	}

	for _, key := range []string{"sms_mo_rate", "sms_mt_rate"} {
		if rate, ok := c.requireNumber(m, path, key); ok && rate < 0 {
			c.addf(join(path, key), "must be >= 0, got %v", rate)
		}
	}
	if v, ok := m["is_discount"]; ok {
		if _, isBool := v.(bool); !isBool {
			c.addf(join(path, "is_discount"), "expected boolean, got %s", jsonType(v))
		}
	}
}

func (c *schemaChecker) requireString(m map[string]any, path, key string, nonEmpty bool) (string, bool) {
	v, ok := m[key]
	if !ok {
		c.addf(join(path, key), "field required")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.addf(join(path, key), "expected string, got %s", jsonType(v))
		return "", false
	}
	if nonEmpty && s == "" {
		c.addf(join(path, key), "must not be empty")
		return "", false
	}
	return s, true
}

func (c *schemaChecker) optionalString(m map[string]any, path, key string) {
	if v, ok := m[key]; ok && v != nil {
		if _, isStr := v.(string); !isStr {
			c.addf(join(path, key), "expected string, got %s", jsonType(v))
		}
	}
}

func (c *schemaChecker) requireNumber(m map[string]any, path, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		c.addf(join(path, key), "field required")
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		c.addf(join(path, key), "expected number, got %s", jsonType(v))
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		c.addf(join(path, key), "invalid number %q", n.String())
		return 0, false
	}
	return f, true
}

// list returns the array at key. A missing or null optional list is treated
// as empty.
func (c *schemaChecker) list(m map[string]any, path, key string, required bool) ([]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			c.addf(join(path, key), "field required")
		}
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		c.addf(join(path, key), "expected array, got %s", jsonType(v))
		return nil, false
	}
	return items, true
}

func (c *schemaChecker) stringList(m map[string]any, path, key string, required bool) {
	items, ok := c.list(m, path, key, required)
	if !ok {
		return
	}
	for i, item := range items {
		if _, isStr := item.(string); !isStr {
			c.addf(fmt.Sprintf("%s[%d]", join(path, key), i), "expected string, got %s", jsonType(item))
		}
	}
}

func (c *schemaChecker) date(m map[string]any, path, key string) (time.Time, bool) {
	s, ok := c.requireString(m, path, key, false)
	if !ok {
		return time.Time{}, false
	}
	if !isoDatePattern.MatchString(s) {
		c.addf(join(path, key), "expected YYYY-MM-DD, got %q", s)
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		c.addf(join(path, key), "not a calendar date: %q", s)
		return time.Time{}, false
	}
	return t, true
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
