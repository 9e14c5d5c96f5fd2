// Package schema provides a small type system for validating untyped configuration bags.
//
// A Schema maps field names to Field declarations. Each Field carries a Type, an
// optional default and a required flag. Resolve overlays the supplied values on the
// defaults, checks each value against its declared type and fails as a whole when any
// field is missing or mistyped:
//
//	s := schema.Schema{
//	    "task_id":    schema.Optional(schema.String(), "2997$10071"),
//	    "model_name": schema.Required(schema.String()),
//	}
//
//	bag, err := schema.Resolve(s, map[string]any{"model_name": "openai"})
//	if err != nil {
//	    for _, key := range schema.FieldKeys(err) {
//	        // report key
//	    }
//	}
//
// Other field types implement Type. An empty Schema accepts every bag and resolves
// to an empty one.
//
// The package has no dependencies beyond the standard library.
package schema
