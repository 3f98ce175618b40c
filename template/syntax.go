package template

import (
	"regexp"
	"strings"
)

// Shorthand references resolve against the root data, so {{eos}} means the
// same thing inside {{#each messages}} as it does outside it.
var (
	ifPattern   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_]\w*)\}\}`)
	eachPattern = regexp.MustCompile(`\{\{#each\s+([a-zA-Z_]\w*)\}\}`)
	varPattern  = regexp.MustCompile(`\{\{([a-zA-Z_]\w*)\}\}`)

	// callPattern matches a call without nested pipelines, e.g. {{upper role}}.
	callPattern  = regexp.MustCompile(`\{\{([a-zA-Z_]\w*)((?:\s+(?:"[^"]*"|'[^']*'|[^\s{}()"']+))+)\}\}`)
	argPattern   = regexp.MustCompile(`"[^"]*"|'[^']*'|\S+`)
	identPattern = regexp.MustCompile(`^[a-zA-Z_]\w*$`)

	// rootRefPattern finds .name and $.name, skipping $m.Content and a.b chains.
	// Lower-case names only: upper-case ones are provider.Message fields.
	rootRefPattern = regexp.MustCompile(`(?:^|[^\w.$)])\$?\.([a-z_]\w*)`)
)

// reserved words that stay as written.
var reserved = map[string]bool{
	"else":     true,
	"end":      true,
	"break":    true,
	"continue": true,
	"nil":      true,
	"true":     true,
	"false":    true,
}

// helpers are the calls whose bare arguments become root references.
var helpers = func() map[string]bool {
	names := make(map[string]bool)
	for name := range defaultFuncs() {
		names[name] = true
	}
	return names
}()

// convertSyntax rewrites the Handlebars-like shorthand into Go template syntax.
// Go template syntax passes through unchanged.
//
//	{{bos}}                -> {{$.bos}}
//	{{#if x}}...{{/if}}    -> {{if $.x}}...{{end}}
//	{{#each messages}}     -> {{range $.messages}}
//	{{upper role "x"}}     -> {{upper $.role "x"}}
func convertSyntax(input string) string {
	out := ifPattern.ReplaceAllString(input, "{{if $$.$1}}")
	out = eachPattern.ReplaceAllString(out, "{{range $$.$1}}")
	out = strings.NewReplacer("{{/if}}", "{{end}}", "{{/each}}", "{{end}}").Replace(out)

	out = varPattern.ReplaceAllStringFunc(out, func(match string) string {
		name := match[2 : len(match)-2]
		if reserved[name] {
			return match
		}
		return "{{$." + name + "}}"
	})

	return callPattern.ReplaceAllStringFunc(out, func(match string) string {
		sub := callPattern.FindStringSubmatch(match)
		if !helpers[sub[1]] {
			return match
		}
		args := argPattern.FindAllString(sub[2], -1)
		for i, arg := range args {
			if identPattern.MatchString(arg) && !reserved[arg] {
				args[i] = "$." + arg
			}
		}
		return "{{" + sub[1] + " " + strings.Join(args, " ") + "}}"
	})
}

// extractVariables returns the root variables a template references, in
// order of first appearance.
func extractVariables(templateStr string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, match := range rootRefPattern.FindAllStringSubmatch(convertSyntax(templateStr), -1) {
		if name := match[1]; !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	return result
}
