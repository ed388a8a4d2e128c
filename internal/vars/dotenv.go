package vars

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/restpad/restpad/internal/errdef"
)

// a "group" key inside the file names the target group; it is not imported as a variable
const dotEnvGroupKey = "group"

var (
	dotEnvRef      = regexp.MustCompile(`\\\$|\$\{([^}]*)\}|\$([A-Za-z0-9_]+)`)
	dotEnvUnclosed = regexp.MustCompile(`\$\{[^}]*$`)
	dotEnvEscapes  = strings.NewReplacer(
		`\n`, "\n", `\r`, "\r", `\t`, "\t", `\b`, "\b", `\f`, "\f",
		`\0`, "\x00", `\"`, `"`, `\\`, `\`,
	)
)

// LoadDotEnv parses a dotenv file and returns the group it targets together with
// its values. The group comes from a group= line, else from the file name
// (.env.staging -> staging, prod.env -> prod), else global.
func LoadDotEnv(path string) (group string, values map[string]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errdef.Wrap(errdef.CodeFilesystem, err, "open env file %s", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeFilesystem, closeErr, "close env file %s", path)
		}
	}()

	p := &dotEnvParser{values: make(map[string]string)}
	if err := p.parse(f); err != nil {
		if errdef.CodeOf(err) == errdef.CodeUnknown {
			err = errdef.Wrap(errdef.CodeFilesystem, err, "read env file %s", path)
		}
		return "", nil, err
	}

	group = p.group
	if group == "" {
		group = groupFromFileName(path)
	}
	return group, p.values, nil
}

// dotEnvParser reads KEY=value lines. Values may be bare (inline # or ;
// comments allowed after whitespace), 'single quoted' (literal) or
// "double quoted" (backslash escapes). $NAME and ${NAME} expand from keys
// defined earlier in the file, then from the process environment.
type dotEnvParser struct {
	values map[string]string
	group  string
	line   int
}

func (p *dotEnvParser) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	groupSeen := false
	for scanner.Scan() {
		p.line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' || text[0] == ';' {
			continue
		}

		key, value, err := p.assignment(text)
		if err != nil {
			return err
		}
		if strings.EqualFold(key, dotEnvGroupKey) {
			if groupSeen {
				return p.errorf("group defined multiple times")
			}
			groupSeen = true
			p.group = strings.TrimSpace(value)
			continue
		}
		p.values[key] = value
	}
	return scanner.Err()
}

func (p *dotEnvParser) assignment(text string) (string, string, error) {
	if rest, ok := cutExport(text); ok {
		text = rest
	}
	key, raw, ok := strings.Cut(text, "=")
	if !ok {
		return "", "", p.errorf("expected KEY=value")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", p.errorf("missing key")
	}

	raw = strings.TrimLeft(raw, " \t")
	if raw == "" {
		return key, "", nil
	}
	switch raw[0] {
	case '\'':
		value, err := p.quoted(raw, '\'')
		return key, value, err
	case '"':
		value, err := p.quoted(raw, '"')
		if err != nil {
			return "", "", err
		}
		value, err = p.expand(value)
		return key, value, err
	default:
		value, err := p.expand(bareValue(raw))
		return key, value, err
	}
}

// quoted returns the text between the opening quote and its unescaped
// partner. Only a comment may follow the closing quote.
func (p *dotEnvParser) quoted(raw string, quote byte) (string, error) {
	end := -1
	for i := 1; i < len(raw); i++ {
		if raw[i] == '\\' {
			i++
			continue
		}
		if raw[i] == quote {
			end = i
			break
		}
	}
	if end < 0 {
		if strings.HasSuffix(raw, `\`) {
			return "", p.errorf("unfinished escape")
		}
		return "", p.errorf("unterminated quoted value")
	}
	if tail := strings.TrimSpace(raw[end+1:]); tail != "" && tail[0] != '#' && tail[0] != ';' {
		return "", p.errorf("unexpected content after quoted value")
	}

	body := raw[1:end]
	if quote == '"' {
		return dotEnvEscapes.Replace(body), nil
	}
	return strings.ReplaceAll(body, `\'`, `'`), nil
}

func (p *dotEnvParser) expand(value string) (string, error) {
	if dotEnvUnclosed.MatchString(strings.ReplaceAll(value, `\$`, "")) {
		return "", p.errorf("missing closing brace for ${")
	}
	var failure error
	out := dotEnvRef.ReplaceAllStringFunc(value, func(ref string) string {
		if failure != nil {
			return ref
		}
		if ref == `\$` {
			return "$"
		}
		m := dotEnvRef.FindStringSubmatch(ref)
		name := m[2]
		if strings.HasPrefix(ref, "${") {
			name = strings.TrimSpace(m[1])
			if name == "" {
				failure = p.errorf("empty variable name")
				return ref
			}
		}
		resolved, err := p.lookup(name)
		if err != nil {
			failure = err
			return ref
		}
		return resolved
	})
	if failure != nil {
		return "", failure
	}
	return out, nil
}

func (p *dotEnvParser) lookup(name string) (string, error) {
	if v, ok := p.values[name]; ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(strings.ToUpper(name)); ok {
		return v, nil
	}
	return "", p.errorf("variable %q is not defined", name)
}

func (p *dotEnvParser) errorf(format string, args ...any) error {
	return errdef.New(errdef.CodeParse, "dotenv line %d: "+format, append([]any{p.line}, args...)...)
}

func cutExport(text string) (string, bool) {
	if len(text) < len("export ") || !strings.EqualFold(text[:len("export")], "export") {
		return text, false
	}
	if c := text[len("export")]; c != ' ' && c != '\t' {
		return text, false
	}
	return strings.TrimSpace(text[len("export"):]), true
}

// bareValue drops an inline comment that starts after whitespace.
func bareValue(raw string) string {
	for i := 1; i < len(raw); i++ {
		if (raw[i] == '#' || raw[i] == ';') && (raw[i-1] == ' ' || raw[i-1] == '\t') {
			return strings.TrimSpace(raw[:i])
		}
	}
	if raw[0] == '#' || raw[0] == ';' {
		return ""
	}
	return strings.TrimSpace(raw)
}

func groupFromFileName(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	var name string
	switch {
	case lower == ".env":
		return GlobalGroup
	case strings.HasPrefix(lower, ".env."):
		name = base[len(".env."):]
	case strings.HasSuffix(lower, ".env"):
		name = base[:len(base)-len(".env")]
	default:
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if name = strings.TrimSpace(name); name == "" {
		return GlobalGroup
	}
	return name
}
