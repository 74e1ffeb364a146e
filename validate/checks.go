package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
)

type patternParams struct {
	Name    string `json:"name,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func evalPattern(p Predicate, value interface{}) (*Failure, error) {
	var params patternParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("decode pattern params for %s: %w", p.Field, err)
	}

	expr := params.Pattern
	if expr == "" {
		named, ok := namedPatterns[params.Name]
		if !ok {
			return nil, fmt.Errorf("unknown named pattern %q for field %s", params.Name, p.Field)
		}
		expr = named
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern for %s: %w", p.Field, err)
	}

	s := fmt.Sprintf("%v", value)
	if !re.MatchString(s) {
		return &Failure{Field: p.Field, Reason: "value does not match required pattern"}, nil
	}
	return nil, nil
}

type rangeParams struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func evalRange(p Predicate, value interface{}) (*Failure, error) {
	var params rangeParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("decode range params for %s: %w", p.Field, err)
	}

	n, ok := toFloat(value)
	if !ok {
		return &Failure{Field: p.Field, Reason: "value is not numeric"}, nil
	}
	if params.Min != nil && n < *params.Min {
		return &Failure{Field: p.Field, Reason: "value below minimum"}, nil
	}
	if params.Max != nil && n > *params.Max {
		return &Failure{Field: p.Field, Reason: "value above maximum"}, nil
	}
	return nil, nil
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

type arrayLengthParams struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

func evalArrayLength(p Predicate, value interface{}) (*Failure, error) {
	var params arrayLengthParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("decode array_length params for %s: %w", p.Field, err)
	}

	arr, ok := value.([]interface{})
	if !ok {
		return &Failure{Field: p.Field, Reason: "value is not an array"}, nil
	}
	n := len(arr)
	if params.Min != nil && n < *params.Min {
		return &Failure{Field: p.Field, Reason: "array shorter than minimum length"}, nil
	}
	if params.Max != nil && n > *params.Max {
		return &Failure{Field: p.Field, Reason: "array longer than maximum length"}, nil
	}
	return nil, nil
}

type arrayUniqueParams struct {
	UniqueKey string `json:"unique_key,omitempty"`
}

func evalArrayUnique(p Predicate, value interface{}) (*Failure, error) {
	var params arrayUniqueParams
	if p.Params != nil {
		if err := json.Unmarshal(p.Params, &params); err != nil {
			return nil, fmt.Errorf("decode array_unique params for %s: %w", p.Field, err)
		}
	}

	arr, ok := value.([]interface{})
	if !ok {
		return &Failure{Field: p.Field, Reason: "value is not an array"}, nil
	}

	seen := make(map[string]bool, len(arr))
	for _, item := range arr {
		key := arrayItemKey(item, params.UniqueKey)
		if seen[key] {
			return &Failure{Field: p.Field, Reason: "array elements are not unique"}, nil
		}
		seen[key] = true
	}
	return nil, nil
}

func arrayItemKey(item interface{}, uniqueKey string) string {
	if uniqueKey == "" {
		raw, _ := json.Marshal(item)
		return string(raw)
	}
	m, ok := item.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("%v", item)
	}
	return fmt.Sprintf("%v", m[uniqueKey])
}

type hasFieldsParams struct {
	RequiredFields []string `json:"required_fields,omitempty"`
}

func evalHasFields(p Predicate, value interface{}) (*Failure, error) {
	var params hasFieldsParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("decode has_fields params for %s: %w", p.Field, err)
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return &Failure{Field: p.Field, Reason: "value is not an object"}, nil
	}
	for _, req := range params.RequiredFields {
		if v, present := obj[req]; !present || isEmptyValue(v) {
			return &Failure{Field: p.Field, Reason: "missing required sub-field " + req}, nil
		}
	}
	return nil, nil
}

func evalArrayItemsRequired(p Predicate, value interface{}) (*Failure, error) {
	var params hasFieldsParams
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return nil, fmt.Errorf("decode array_items_required params for %s: %w", p.Field, err)
	}

	arr, ok := value.([]interface{})
	if !ok {
		return &Failure{Field: p.Field, Reason: "value is not an array"}, nil
	}
	for i, item := range arr {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return &Failure{Field: p.Field, Reason: fmt.Sprintf("element %d is not an object", i)}, nil
		}
		for _, req := range params.RequiredFields {
			if v, present := obj[req]; !present || isEmptyValue(v) {
				return &Failure{Field: p.Field, Reason: fmt.Sprintf("element %d missing required sub-field %s", i, req)}, nil
			}
		}
	}
	return nil, nil
}
