package fat16

import (
	"strings"
)

// ShortNameFromRaw decodes a space-padded 8.3 name component. Bytes outside
// of ASCII are kept as their Latin-1 code points so that the result is always
// valid UTF-8 (the real OEM code page is unknown).
func ShortNameFromRaw(raw []byte) string {
	decoded := make([]rune, 0, len(raw))
	for _, c := range raw {
		decoded = append(decoded, rune(c))
	}

	return strings.TrimRight(string(decoded), " \x00")
}

// JoinShortName builds "NAME.EXT" from its components.
func JoinShortName(name, extension string) string {
	if extension == "" {
		return name
	}

	return name + "." + extension
}
