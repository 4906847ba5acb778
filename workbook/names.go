package workbook

import (
	"strings"
	"unicode/utf8"

	"github.com/uoloki/microsoft-dataextract/domain"
)

const (
	MaxSheetNameLength = 31

	invalidSheetNameChars = `:\/?*[]`
)

// ValidateSheetName checks a sheet name against the xlsx naming rules.
func ValidateSheetName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return domain.ErrInvalidSheetName("blank sheet name")

	case utf8.RuneCountInString(name) > MaxSheetNameLength:
		return domain.ErrInvalidSheetName("sheet name '%s' is longer than %d characters", name, MaxSheetNameLength)

	case strings.ContainsAny(name, invalidSheetNameChars):
		return domain.ErrInvalidSheetName("sheet name '%s' contains one of %s", name, invalidSheetNameChars)

	case strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'"):
		return domain.ErrInvalidSheetName("sheet name '%s' starts or ends with an apostrophe", name)

	case strings.EqualFold(name, "History"):
		return domain.ErrInvalidSheetName("sheet name '%s' is reserved", name)
	}

	return nil
}
