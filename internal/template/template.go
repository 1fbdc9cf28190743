// Package template renders campaign message templates against an outbound
// lead's profile fields.
package template

import (
	"strings"
)

// Lead is the subset of outbound-lead fields the substitution grammar reads.
type Lead struct {
	Username string
	Name     string
	Bio      string
}

// Render substitutes {{username}}, {{firstName}}, {{name}}, and {{bio}}
// tokens in tmpl with the corresponding Lead fields. firstName is the
// whitespace-split first word of Name, falling back to Username if Name is
// empty. Missing fields substitute as empty string. No other escaping is
// performed.
func Render(tmpl string, lead Lead) string {
	firstName := firstWord(lead.Name)
	if firstName == "" {
		firstName = firstWord(lead.Username)
	}

	r := strings.NewReplacer(
		"{{username}}", lead.Username,
		"{{firstName}}", firstName,
		"{{name}}", lead.Name,
		"{{bio}}", lead.Bio,
	)
	return r.Replace(tmpl)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
