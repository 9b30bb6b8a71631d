// ABOUTME: Pure recursive sanitizer constraining tool schemas to the dialect the model accepts
// ABOUTME: Strips unsupported string formats and prunes empty-string anyOf branches

// Package schema rewrites JSON-schema parameter definitions into the
// constrained dialect the downstream model tolerates. The transform is pure,
// idempotent, and never fails on object-shaped input.
package schema

import "encoding/json"

// allowedFormats lists the string formats the downstream model accepts.
// Everything else is stripped silently.
var allowedFormats = map[string]bool{
	"date-time": true,
	"enum":      true,
}

// DefaultSchema returns the parameter schema used when a tool declares none.
func DefaultSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// Sanitize returns a constrained copy of the schema. The input is never
// mutated. A nil schema yields the default empty object schema. Nodes the
// sanitizer does not understand pass through unchanged.
func Sanitize(schema map[string]any) map[string]any {
	if schema == nil {
		return DefaultSchema()
	}
	return sanitizeNode(schema)
}

// SanitizeRaw sanitizes a JSON-encoded schema. Input that does not parse as
// an object becomes the default empty object schema.
func SanitizeRaw(raw json.RawMessage) json.RawMessage {
	var schema map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &schema) != nil || schema == nil {
		out, _ := json.Marshal(DefaultSchema())
		return out
	}
	out, err := json.Marshal(Sanitize(schema))
	if err != nil {
		fallback, _ := json.Marshal(DefaultSchema())
		return fallback
	}
	return out
}

func sanitizeNode(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for k, v := range node {
		out[k] = v
	}

	if out["type"] == "string" {
		if format, ok := out["format"].(string); ok && !allowedFormats[format] {
			delete(out, "format")
		}
	}

	if props, ok := out["properties"].(map[string]any); ok {
		cleaned := make(map[string]any, len(props))
		for name, sub := range props {
			if subMap, ok := sub.(map[string]any); ok {
				cleaned[name] = sanitizeNode(subMap)
			} else {
				cleaned[name] = sub
			}
		}
		out["properties"] = cleaned
	}

	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = sanitizeNode(items)
	}

	if branches, ok := out["anyOf"].([]any); ok {
		sanitizeAnyOf(out, branches)
	}

	return out
}

// sanitizeAnyOf prunes branches the model rejects and collapses a lone
// survivor into the parent node, branch keys winning on conflict.
func sanitizeAnyOf(node map[string]any, branches []any) {
	survivors := make([]any, 0, len(branches))
	for _, raw := range branches {
		branch, ok := raw.(map[string]any)
		if !ok {
			survivors = append(survivors, raw)
			continue
		}
		cleaned := sanitizeNode(branch)
		if dropBranch(cleaned) {
			continue
		}
		survivors = append(survivors, cleaned)
	}

	switch len(survivors) {
	case 0:
		delete(node, "anyOf")
	case 1:
		only, ok := survivors[0].(map[string]any)
		if !ok {
			node["anyOf"] = survivors
			return
		}
		delete(node, "anyOf")
		for k, v := range only {
			node[k] = v
		}
	default:
		node["anyOf"] = survivors
	}
}

// dropBranch reports whether an anyOf branch matches the empty-string
// patterns the model rejects: a string constrained to const "" or an enum
// left empty once empty-string members are removed. Surviving enums keep
// only their non-empty members.
func dropBranch(branch map[string]any) bool {
	if branch["type"] == "string" {
		if c, ok := branch["const"].(string); ok && c == "" {
			return true
		}
	}

	if rawEnum, ok := branch["enum"].([]any); ok {
		filtered := make([]any, 0, len(rawEnum))
		for _, v := range rawEnum {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			filtered = append(filtered, v)
		}
		if len(filtered) == 0 {
			return true
		}
		branch["enum"] = filtered
	}

	return false
}
