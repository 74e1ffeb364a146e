package clean

// ApplyField reads the value at path out of doc, runs it through ops,
// and writes the result back. When the path resolves to a slice (array
// broadcast), ops run independently over every element and the
// corresponding slice of results is written back.
func ApplyField(doc map[string]interface{}, path string, ops []Op) error {
	value, ok := Get(doc, path)
	if !ok {
		return nil
	}

	if values, isSlice := value.([]interface{}); isSlice {
		cleaned := make([]interface{}, len(values))
		for i, v := range values {
			s, err := Apply(v, ops)
			if err != nil {
				return err
			}
			cleaned[i] = s
		}
		Set(doc, path, cleaned)
		return nil
	}

	s, err := Apply(value, ops)
	if err != nil {
		return err
	}
	Set(doc, path, s)
	return nil
}
