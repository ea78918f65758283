package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
)

// requireShim matches the declaration of esbuild's require shim, e.g.
// `var __require = /* @__PURE__ */ ((x) => typeof require !== "undefined" ? ...`
// or, minified, `a=(e=>typeof require<"u"?...`. Group 1 is the shim's name.
var requireShim = regexp.MustCompile(
	`(?:^|[^.\w$])([A-Za-z_$][\w$]*)\s*=\s*(?:/\*\s*@__PURE__\s*\*/\s*)?\(\s*\(?\s*[A-Za-z_$][\w$]*\s*\)?\s*=>\s*typeof\s+require\b`)

// requireCallees returns the names that call require in code: require
// itself, __require, and any renamed shim.
func requireCallees(code string) []string {
	names := []string{"require", "__require"}
	for _, m := range requireShim.FindAllStringSubmatch(code, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// requireCall matches a call to one of callees whose only argument is the
// quoted module name. Member calls like loader.load("m") are left alone.
// The first group captures the character before the callee so it can be kept.
func requireCall(module string, callees []string) *regexp.Regexp {
	alts := make([]string, len(callees))
	for i, c := range callees {
		alts[i] = regexp.QuoteMeta(c)
	}
	q := regexp.QuoteMeta(module)
	return regexp.MustCompile(fmt.Sprintf(
		`(^|[^.\w$])(?:%[2]s)\(\s*(?:"%[1]s"|'%[1]s'|`+"`%[1]s`"+`)\s*\)`,
		q, strings.Join(alts, "|")))
}

// PatchExternal replaces every require call for module in code with a
// reference to global. Calls to other functions are never rewritten.
func PatchExternal(code, module, global string) string {
	return requireCall(module, requireCallees(code)).ReplaceAllString(code, "${1}"+global)
}

// findUnresolved returns the first marker, or the first require call for
// module, found in markup. It returns "" if there is none.
func findUnresolved(markup, module string, markers []string) string {
	for _, m := range markers {
		if m != "" && strings.Contains(markup, m) {
			return m
		}
	}
	if loc := requireCall(module, requireCallees(markup)).FindStringSubmatchIndex(markup); loc != nil {
		// Skip the captured prefix character.
		return markup[loc[3]:loc[1]]
	}
	return ""
}
