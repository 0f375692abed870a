package ml

// EncodedSuffix is appended to a categorical column name to form its schema entry.
const EncodedSuffix = "_encoded"

// Schema is the ordered list of model input columns fixed at training time.
type Schema []string

// BuildSchema returns the numerical candidates present in columns followed by
// the encoded name of every categorical candidate present in columns. Candidate
// order is preserved and absent candidates are skipped.
func BuildSchema(columns []string, numerical, categorical []string) Schema {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	schema := make(Schema, 0, len(numerical)+len(categorical))
	for _, name := range numerical {
		if present[name] {
			schema = append(schema, name)
		}
	}
	for _, name := range categorical {
		if present[name] {
			schema = append(schema, EncodedName(name))
		}
	}
	return schema
}

// EncodedName returns the schema column used for a categorical feature.
func EncodedName(column string) string {
	return column + EncodedSuffix
}

func (s Schema) Len() int {
	return len(s)
}

// Index returns the position of name in the schema or -1.
func (s Schema) Index(name string) int {
	for i, col := range s {
		if col == name {
			return i
		}
	}
	return -1
}

func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
