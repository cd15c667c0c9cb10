package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// tagName is the struct tag key read by the metadata builder.
const tagName = "tuple"

// fieldTag is the parsed form of `tuple:"name,pos=N,id,nullable"`.
type fieldTag struct {
	name     string
	position int // -1 when not set
	identity bool
	nullable bool
	skip     bool
}

func parseTag(raw string) (fieldTag, error) {
	tag := fieldTag{position: -1}
	if raw == "-" {
		tag.skip = true
		return tag, nil
	}
	if raw == "" {
		return tag, nil
	}

	parts := strings.Split(raw, ",")
	tag.name = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "id":
			tag.identity = true
		case opt == "nullable":
			tag.nullable = true
		case strings.HasPrefix(opt, "pos="):
			pos, err := strconv.Atoi(strings.TrimPrefix(opt, "pos="))
			if err != nil || pos < 0 {
				return tag, fmt.Errorf("invalid position %q", opt)
			}
			tag.position = pos
		case opt == "":
		default:
			return tag, fmt.Errorf("unknown tag option %q", opt)
		}
	}
	return tag, nil
}

// snakeCase converts a Go identifier to snake_case: UniqueKey -> unique_key,
// ID -> id, HTTPServer -> http_server.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
