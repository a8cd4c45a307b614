package application

import (
	"fmt"

	"datapi-mcp-server/internal/domain"
)

func invalidParams(format string, args ...interface{}) *domain.Error {
	return &domain.Error{
		Code:    domain.InvalidParams,
		Message: fmt.Sprintf(format, args...),
	}
}

// getStringParam extracts a string parameter from the arguments map.
// Returns an error if the parameter is required but missing, empty, or not a string.
func getStringParam(args map[string]interface{}, name string, required bool) (string, error) {
	value, exists := args[name]
	if !exists || value == nil {
		if required {
			return "", invalidParams("missing required parameter: %s", name)
		}
		return "", nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", invalidParams("parameter %s must be a string", name)
	}

	if required && strValue == "" {
		return "", invalidParams("parameter %s must not be empty", name)
	}

	return strValue, nil
}

// getOptionalStringParam extracts an optional string. The second return
// value reports whether the parameter was present, so an explicit "" is
// distinguishable from an omitted value.
func getOptionalStringParam(args map[string]interface{}, name string) (string, bool, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return "", false, nil
	}
	strValue, ok := value.(string)
	if !ok {
		return "", false, invalidParams("parameter %s must be a string", name)
	}
	return strValue, true, nil
}

// getStringSliceParam extracts a list of strings. The second return value
// reports whether the parameter was present.
func getStringSliceParam(args map[string]interface{}, name string, required bool) ([]string, bool, error) {
	value, exists := args[name]
	if !exists || value == nil {
		if required {
			return nil, false, invalidParams("missing required parameter: %s", name)
		}
		return nil, false, nil
	}

	switch v := value.(type) {
	case []string:
		return v, true, nil
	case []interface{}:
		values := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false, invalidParams("parameter %s[%d] must be a string", name, i)
			}
			values[i] = s
		}
		return values, true, nil
	default:
		return nil, false, invalidParams("parameter %s must be an array of strings", name)
	}
}

// getBBoxParam extracts exactly four numbers. The second return value
// reports whether the parameter was present.
func getBBoxParam(args map[string]interface{}, name string) ([4]float64, bool, error) {
	var bbox [4]float64

	value, exists := args[name]
	if !exists || value == nil {
		return bbox, false, nil
	}

	var items []interface{}
	switch v := value.(type) {
	case []interface{}:
		items = v
	case []float64:
		items = make([]interface{}, len(v))
		for i, f := range v {
			items[i] = f
		}
	default:
		return bbox, false, invalidParams("parameter %s must be an array of 4 numbers", name)
	}

	if len(items) != 4 {
		return bbox, false, invalidParams("parameter %s must have exactly 4 elements, got %d", name, len(items))
	}

	for i, item := range items {
		switch n := item.(type) {
		case float64:
			bbox[i] = n
		case int:
			bbox[i] = float64(n)
		default:
			return bbox, false, invalidParams("parameter %s[%d] must be a number", name, i)
		}
	}

	return bbox, true, nil
}

// getObjectParam extracts a nested object parameter.
func getObjectParam(args map[string]interface{}, name string, required bool) (map[string]interface{}, error) {
	value, exists := args[name]
	if !exists || value == nil {
		if required {
			return nil, invalidParams("missing required parameter: %s", name)
		}
		return nil, nil
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, invalidParams("parameter %s must be an object", name)
	}
	return obj, nil
}
