package repository

import (
	"fmt"
	"regexp"
)

// SchemaError reports a table layout that does not allow the migration to
// proceed. It is always raised before any data is touched.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on %q: %s", e.Table, e.Reason)
}

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects table and column names that are not plain SQL
// identifiers.
func ValidateIdentifier(name string) error {
	if !identifierRE.MatchString(name) {
		return &SchemaError{Table: name, Reason: "not a valid identifier"}
	}
	return nil
}
