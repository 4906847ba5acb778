package domain

import (
	"strings"
)

// Workbook schema contract. The annotator, the reducer and the workbook reader/writer
// all key off these values; bump SchemaVersion if either changes.
const (
	SchemaVersion = 1
	MarkerSuffix  = "_Y"
	Affirmative   = "Y"
)

// MarkerFor returns the name of the marker column paired with column.
func MarkerFor(column string) string {
	return column + MarkerSuffix
}

// IsMarkerName reports whether name carries the marker suffix.
func IsMarkerName(name string) bool {
	return strings.HasSuffix(name, MarkerSuffix)
}

// PairedColumn returns the data column a marker column belongs to, or false if the
// marker name has nothing in front of the suffix.
func PairedColumn(marker string) (string, bool) {
	if !IsMarkerName(marker) {
		return "", false
	}

	column := strings.TrimSuffix(marker, MarkerSuffix)

	return column, column != ""
}

// IsAffirmative reports whether a marker cell value means "keep this column".
func IsAffirmative(v any) bool {
	s, ok := v.(string)

	return ok && strings.TrimSpace(s) == Affirmative
}
