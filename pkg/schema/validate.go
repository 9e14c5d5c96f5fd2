package schema

// Resolve checks data against the schema and returns the resolved bag:
// defaults overlaid with the supplied values, each checked against its declared type.
// Undeclared keys are not copied. On any failure no bag is returned and the error
// is an *AggregateError holding one *ValidationError per failing field.
func Resolve(schema Schema, data map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(schema))
	var errs []error

	for _, fieldName := range schema.Keys() {
		field := schema[fieldName]

		value, exists := data[fieldName]
		if !exists || value == nil {
			if field.Default == nil {
				if field.Required {
					errs = append(errs, &ValidationError{
						Key:    fieldName,
						Reason: "required",
						Value:  nil,
					})
				}
				continue
			}
			value = field.Default
		}

		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
			continue
		}
		resolved[fieldName] = value
	}

	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}

	return resolved, nil
}
