package vars

import (
	"regexp"
	"strings"
)

// identifier-only names keep {{a}}{{b}} and {{user.name}} unambiguous: the
// latter is never treated as a placeholder.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// ApplyTemplate replaces every {{name}} whose name is defined in flat.
// Undefined placeholders stay verbatim. Values are inserted as-is and are not
// expanded again.
func ApplyTemplate(text string, flat map[string]string) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if value, ok := flat[strings.TrimSpace(sub[1])]; ok {
			return value
		}
		return match
	})
}

// Placeholders lists the distinct names referenced by text in order of first use.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Unresolved returns the placeholders in text that flat cannot satisfy.
func Unresolved(text string, flat map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(text) {
		if _, ok := flat[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
