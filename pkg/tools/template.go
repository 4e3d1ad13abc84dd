package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var commandTemplatePlaceholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderCommandTemplate substitutes {{placeholders}} in a skill's
// command template with shell-quoted argument values. A placeholder
// without a matching argument fails the render.
func RenderCommandTemplate(template string, args map[string]interface{}) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", fmt.Errorf("command template is empty")
	}
	out := commandTemplatePlaceholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		keyMatches := commandTemplatePlaceholderRegex.FindStringSubmatch(match)
		if len(keyMatches) != 2 {
			return ""
		}
		key := keyMatches[1]
		raw, ok := args[key]
		if !ok {
			// sentinel marker for missing arg; handled below
			return "<<missing:" + key + ">>"
		}
		return shellQuote(renderTemplateValue(raw))
	})
	if missing := findMissingTemplateArg(out); missing != "" {
		return "", fmt.Errorf("missing required template argument: %s", missing)
	}
	return out, nil
}

// RenderURLTemplate substitutes {{placeholders}} with URL-safe values.
func RenderURLTemplate(template string, args map[string]interface{}) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", fmt.Errorf("url template is empty")
	}
	out := commandTemplatePlaceholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		keyMatches := commandTemplatePlaceholderRegex.FindStringSubmatch(match)
		if len(keyMatches) != 2 {
			return ""
		}
		key := keyMatches[1]
		raw, ok := args[key]
		if !ok {
			return "<<missing:" + key + ">>"
		}
		return urlEscape(renderTemplateValue(raw))
	})
	if missing := findMissingTemplateArg(out); missing != "" {
		return "", fmt.Errorf("missing required template argument: %s", missing)
	}
	return out, nil
}

func findMissingTemplateArg(rendered string) string {
	start := strings.Index(rendered, "<<missing:")
	if start < 0 {
		return ""
	}
	end := strings.Index(rendered[start:], ">>")
	if end < 0 {
		return "unknown"
	}
	token := rendered[start : start+end+2]
	token = strings.TrimPrefix(token, "<<missing:")
	token = strings.TrimSuffix(token, ">>")
	return token
}

func renderTemplateValue(v interface{}) string {
	switch tv := v.(type) {
	case string:
		return tv
	case float64:
		if tv == float64(int64(tv)) {
			return strconv.FormatInt(int64(tv), 10)
		}
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		if tv {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", tv)
	}
}

func shellQuote(raw string) string {
	if raw == "" {
		return "''"
	}
	escaped := strings.ReplaceAll(raw, `'`, `'\''`)
	return "'" + escaped + "'"
}

func urlEscape(raw string) string {
	replacer := strings.NewReplacer(
		" ", "%20",
		"&", "%26",
		"?", "%3F",
		"#", "%23",
		"=", "%3D",
	)
	return replacer.Replace(raw)
}
