package mcp

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/qiniu/phabmcp/pkg/models"
)

// toolValidator implements ToolValidator.
type toolValidator struct{}

// NewToolValidator creates a validator.
func NewToolValidator() ToolValidator {
	return &toolValidator{}
}

// ValidateCall validates a call against the tool's input schema.
func (v *toolValidator) ValidateCall(call *models.ToolCall, tool *models.Tool) error {
	if call == nil {
		return fmt.Errorf("tool call is nil")
	}

	if tool == nil {
		return fmt.Errorf("tool definition is nil")
	}

	if tool.InputSchema != nil {
		if err := v.ValidateArguments(call.Function.Arguments, tool.InputSchema); err != nil {
			return fmt.Errorf("argument validation failed: %w", err)
		}
	}

	return nil
}

// ValidatePermissions checks the call against the context's constraints
// and permission list. A nil context skips the checks.
func (v *toolValidator) ValidatePermissions(call *models.ToolCall, mcpCtx *models.MCPContext) error {
	if mcpCtx == nil {
		return nil
	}

	for _, constraint := range mcpCtx.Constraints {
		if v.violatesConstraint(call, constraint) {
			return fmt.Errorf("tool call violates constraint: %s", constraint)
		}
	}

	// An empty permission list means no permission policy is configured.
	if len(mcpCtx.Permissions) > 0 {
		required := v.getRequiredPermission(call.Function.Name)
		if !slices.Contains(mcpCtx.Permissions, required) {
			return fmt.Errorf("insufficient permissions: requires %s", required)
		}
	}

	return nil
}

// ValidateArguments validates arguments against a JSON schema.
func (v *toolValidator) ValidateArguments(args map[string]interface{}, schema *models.JSONSchema) error {
	if schema == nil {
		return nil
	}

	for _, required := range schema.Required {
		if _, exists := args[required]; !exists {
			return fmt.Errorf("missing required argument: %s", required)
		}
	}

	for key, value := range args {
		if schema.Properties != nil {
			if fieldSchema, exists := schema.Properties[key]; exists {
				if err := v.validateValue(value, fieldSchema, key); err != nil {
					return err
				}
			} else if !schema.AdditionalProperties {
				return fmt.Errorf("unexpected argument: %s", key)
			}
		}
	}

	return nil
}

func (v *toolValidator) validateValue(value interface{}, schema *models.JSONSchema, fieldName string) error {
	if value == nil {
		return nil
	}

	switch schema.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %s must be a string, got %T", fieldName, value)
		}

		if len(schema.Enum) > 0 {
			if !slices.Contains(schema.Enum, value) {
				return fmt.Errorf("argument %s must be one of %v, got %v", fieldName, schema.Enum, value)
			}
		}

	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return fmt.Errorf("argument %s must be a number, got %T", fieldName, value)
		}

	case "integer":
		switch value.(type) {
		case int, int32, int64:
		case float64:
			// JSON numbers decode as float64; reject fractional values.
			if f, ok := value.(float64); ok && f != float64(int64(f)) {
				return fmt.Errorf("argument %s must be an integer, got float %v", fieldName, f)
			}
		default:
			return fmt.Errorf("argument %s must be an integer, got %T", fieldName, value)
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %s must be a boolean, got %T", fieldName, value)
		}

	case "array":
		slice := reflect.ValueOf(value)
		if slice.Kind() != reflect.Slice && slice.Kind() != reflect.Array {
			return fmt.Errorf("argument %s must be an array, got %T", fieldName, value)
		}

		if schema.Items != nil {
			for i := 0; i < slice.Len(); i++ {
				item := slice.Index(i).Interface()
				if err := v.validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", fieldName, i)); err != nil {
					return err
				}
			}
		}

	case "object":
		objMap, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("argument %s must be an object, got %T", fieldName, value)
		}

		if schema.Properties != nil {
			for key, val := range objMap {
				if propSchema, exists := schema.Properties[key]; exists {
					if err := v.validateValue(val, propSchema, fmt.Sprintf("%s.%s", fieldName, key)); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

func (v *toolValidator) violatesConstraint(call *models.ToolCall, constraint string) bool {
	switch constraint {
	case "read-only":
		return v.isWriteOperation(call.Function.Name)
	case "no-external-access":
		return true // every tool here talks to the Phabricator API
	default:
		return false
	}
}

// isWriteOperation reports whether a tool mutates Phabricator state.
func (v *toolValidator) isWriteOperation(toolName string) bool {
	writeKeywords := []string{"add", "accept", "request", "subscribe", "edit", "create", "update", "delete"}
	lowerName := strings.ToLower(toolName)

	for _, keyword := range writeKeywords {
		if strings.Contains(lowerName, keyword) {
			return true
		}
	}
	return false
}

// getRequiredPermission maps a tool name to the permission it needs.
func (v *toolValidator) getRequiredPermission(toolName string) string {
	if v.isWriteOperation(toolName) {
		return "phabricator:write"
	}
	return "phabricator:read"
}
