package naming

import "strings"

// reservedKeys are the keys that query shapes add next to entity fields.
// A field or relation using one of them would be shadowed.
var reservedKeys = map[string]bool{
	"AND":            true,
	"OR":             true,
	"NOT":            true,
	"_count":         true,
	"_avg":           true,
	"_sum":           true,
	"_min":           true,
	"_max":           true,
	"_all":           true,
	"select":         true,
	"include":        true,
	"where":          true,
	"orderBy":        true,
	"cursor":         true,
	"take":           true,
	"skip":           true,
	"distinct":       true,
	"data":           true,
	"by":             true,
	"having":         true,
	"skipDuplicates": true,
}

// IsReserved reports whether name collides with a key used by query shapes.
func IsReserved(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	return reservedKeys[name]
}

// escapeReserved appends an underscore to reserved names.
func escapeReserved(name string) string {
	if IsReserved(name) {
		return name + "_"
	}
	return name
}
