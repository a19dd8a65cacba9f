package dispatch

import (
	"fmt"
	"regexp"
	"strings"
)

// paramPattern finds {name} placeholders in a URI template.
var paramPattern = regexp.MustCompile(`\{([^}]+)\}`)

// TemplateError reports an invalid URI template.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("invalid URI template %q: %s", e.Template, e.Reason)
}

// URITemplate is a compiled URI template. Literal characters match
// exactly; each {name} placeholder matches one non-separator segment.
// Compiled once at registration and immutable afterwards.
type URITemplate struct {
	raw    string
	re     *regexp.Regexp
	params []string
}

// CompileTemplate compiles a URI template into a matcher. It fails with
// a TemplateError when the template declares the same parameter twice.
func CompileTemplate(template string) (*URITemplate, error) {
	matches := paramPattern.FindAllStringSubmatch(template, -1)

	params := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			return nil, &TemplateError{
				Template: template,
				Reason:   "duplicate parameter name " + m[1],
			}
		}
		seen[m[1]] = true
		params = append(params, m[1])
	}

	// Escape literals, then restore the placeholders so they can become
	// capture groups.
	pattern := regexp.QuoteMeta(template)
	pattern = strings.ReplaceAll(pattern, `\{`, "{")
	pattern = strings.ReplaceAll(pattern, `\}`, "}")
	pattern = paramPattern.ReplaceAllString(pattern, `([^/]+)`)
	pattern = "^" + pattern + "$"

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &TemplateError{Template: template, Reason: err.Error()}
	}

	return &URITemplate{raw: template, re: re, params: params}, nil
}

// Raw returns the template string as registered.
func (t *URITemplate) Raw() string {
	return t.raw
}

// Params returns the parameter names in declaration order.
func (t *URITemplate) Params() []string {
	return t.params
}

// Match extracts named parameters from a concrete URI, or reports no
// match. Captures are raw strings; any validation or conversion is the
// caller's job.
func (t *URITemplate) Match(uri string) (map[string]string, bool) {
	captures := t.re.FindStringSubmatch(uri)
	if captures == nil {
		return nil, false
	}

	params := make(map[string]string, len(t.params))
	for i, name := range t.params {
		params[name] = captures[i+1]
	}
	return params, true
}
