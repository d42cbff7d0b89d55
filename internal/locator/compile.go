package locator

import (
	"fmt"
	"strings"
)

// Compile converts a locator to a parameterized SQL lookup against the
// repository's elements table. Property constraints compile to json_extract
// conditions over the stored property blob; the class filter compiles to a
// plain column condition.
//
// All values are parameterized, never interpolated. The query always includes
// ORDER BY id so that diagnostic output for ambiguous matches is
// deterministic.
func Compile(l Locator) (string, []any, error) {
	if len(l.Constraints) == 0 {
		return "", nil, fmt.Errorf("cannot compile locator without constraints")
	}

	var where []string
	var params []any
	if l.Class != "" {
		where = append(where, "class = ?")
		params = append(params, l.Class)
	}
	for _, c := range l.Constraints {
		if strings.ContainsAny(c.Property, "'\"$[]") {
			return "", nil, fmt.Errorf("locator property %q: illegal character", c.Property)
		}
		where = append(where, fmt.Sprintf("json_extract(props, '$.%s') = ?", c.Property))
		params = append(params, c.Value)
	}

	sql := "SELECT id FROM elements WHERE " + strings.Join(where, " AND ") + " ORDER BY id"
	return sql, params, nil
}
