package extension

import "fmt"

// CheckJSONSafe verifies that v contains only values representable in plain
// JSON: strings, booleans, numbers, nil, []any, and map[string]any,
// recursively. It returns an error naming the path of the first offending
// value. The frozen capability tree handed to the script runtime must hold
// only such values, so the check runs at validation time rather than at the
// freeze boundary.
func CheckJSONSafe(v any) error {
	return checkJSONSafe(v, "$")
}

func checkJSONSafe(v any, path string) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []any:
		for i, item := range val {
			if err := checkJSONSafe(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for k, item := range val {
			if err := checkJSONSafe(item, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("value at %s has non-JSON type %T", path, v)
	}
}
