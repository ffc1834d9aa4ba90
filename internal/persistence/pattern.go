package persistence

import (
	"regexp"
	"strings"
)

// SearchPattern is a shell-like pattern where '*' matches any run of characters.
// The whole name has to match.
type SearchPattern struct {
	original string
	regStr   string
	regexp   *regexp.Regexp
	valid    bool
}

func Pattern(s string) SearchPattern {
	parts := strings.Split(s, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	regStr := "^" + strings.Join(parts, ".*") + "$"
	reg, err := regexp.Compile(regStr)
	return SearchPattern{
		original: s,
		regStr:   regStr,
		regexp:   reg,
		valid:    err == nil,
	}
}

func (p SearchPattern) Match(name string) bool {
	if !p.valid {
		return false
	}
	return p.regexp.MatchString(name)
}

func (p SearchPattern) Valid() bool {
	return p.valid
}

func (p SearchPattern) String() string {
	return p.original
}

// SQLLike translates the pattern for a LIKE clause.
func (p SearchPattern) SQLLike() string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`, "*", "%")
	return r.Replace(p.original)
}

func (p SearchPattern) RegexpString() string {
	return p.regStr
}
