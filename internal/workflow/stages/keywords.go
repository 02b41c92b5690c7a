package stages

import (
	"strings"
	"unicode"
)

// MaxKeywords bounds how many keywords ExtractKeywords returns.
const MaxKeywords = 5

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "for": {}, "with": {},
	"to": {}, "in": {}, "on": {}, "me": {}, "my": {}, "i": {}, "please": {}, "make": {},
	"design": {}, "create": {}, "want": {}, "some": {}, "style": {}, "that": {}, "this": {},
	"is": {}, "be": {}, "it": {}, "like": {}, "using": {}, "from": {},
	"设计": {}, "一个": {}, "我想": {}, "帮我": {}, "请": {},
}

// ExtractKeywords pulls a short, ordered keyword list out of a prompt.
// Known category markers come first so that downstream search and
// placeholder matching key on the most specific term.
func ExtractKeywords(prompt string) []string {
	lower := strings.ToLower(prompt)
	seen := map[string]struct{}{}
	var out []string
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" {
			return
		}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, c := range categories {
		for _, m := range c.markers {
			if strings.Contains(lower, m) {
				add(m)
				break
			}
		}
	}

	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '，' || r == '、' || r == '。'
	})
	for _, f := range fields {
		f = strings.Trim(f, "'\"")
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len([]rune(f)) < 2 {
			continue
		}
		add(f)
	}

	if len(out) > MaxKeywords {
		out = out[:MaxKeywords]
	}
	return out
}
