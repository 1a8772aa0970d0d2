// Package servers implements the MCP tool servers for Phabricator's
// Maniphest and Differential applications.
package servers

import (
	"fmt"
	"strconv"

	"github.com/qiniu/phabmcp/internal/phab"
)

// ClientSource resolves a Conduit client for one tool call. The api_token
// argument, when present, overrides the configured credentials.
type ClientSource interface {
	Client(apiToken string) (phab.API, error)
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]interface{}, key string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return ""
}

// requiredString extracts a required string argument.
func requiredString(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing or invalid %s", key)
	}
	return value, nil
}

// objectIDArg extracts a Phabricator object ID argument. JSON numbers
// decode as float64; string IDs are accepted too.
func objectIDArg(args map[string]interface{}, key string) (string, error) {
	switch value := args[key].(type) {
	case float64:
		if value != float64(int64(value)) || value <= 0 {
			return "", fmt.Errorf("invalid %s: %v", key, value)
		}
		return strconv.FormatInt(int64(value), 10), nil
	case int:
		if value <= 0 {
			return "", fmt.Errorf("invalid %s: %v", key, value)
		}
		return strconv.Itoa(value), nil
	case string:
		if value == "" {
			return "", fmt.Errorf("missing or invalid %s", key)
		}
		return value, nil
	default:
		return "", fmt.Errorf("missing or invalid %s", key)
	}
}

// intArg extracts an optional integer argument, falling back to def.
func intArg(args map[string]interface{}, key string, def int) int {
	switch value := args[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return def
	}
}

// boolArg extracts an optional boolean argument, falling back to def.
func boolArg(args map[string]interface{}, key string, def bool) bool {
	if value, ok := args[key].(bool); ok {
		return value
	}
	return def
}

// stringSliceArg extracts an optional list-of-strings argument.
func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	var values []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			values = append(values, s)
		}
	}
	return values
}
