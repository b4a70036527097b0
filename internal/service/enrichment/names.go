package enrichment

import "strings"

// civilities are the title prefixes cadastre owner strings carry.
var civilities = map[string]bool{
	"M":    true,
	"M.":   true,
	"MR":   true,
	"MME":  true,
	"MLLE": true,
}

// SplitOwnerName breaks a cadastre owner string into last and first name.
// The format is "LASTNAME Firstname", optionally prefixed with a civility
// ("M DUPONT Jean"). Compound last names stay upper-cased in the source, so
// every fully upper-cased leading token belongs to the last name.
func SplitOwnerName(owner string) (lastName, firstName string) {
	tokens := strings.Fields(strings.TrimSpace(owner))
	if len(tokens) > 0 && civilities[strings.ToUpper(tokens[0])] {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return "", ""
	}
	if len(tokens) == 1 {
		return tokens[0], ""
	}

	split := 0
	for split < len(tokens)-1 && isUpperToken(tokens[split]) {
		split++
	}
	if split == 0 {
		split = 1
	}
	return strings.Join(tokens[:split], " "), strings.Join(tokens[split:], " ")
}

func isUpperToken(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if (r >= 'A' && r <= 'Z') || r > 127 {
			hasLetter = true
		}
	}
	return hasLetter
}
