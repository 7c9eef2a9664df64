package repo

import (
	"regexp"
	"strings"
)

// compileGlob translates a shell pattern into an anchored regexp with
// fnmatch semantics: '*' and '?' also match '/', "[...]" is a character
// class negated by a leading '!', and an unclosed '[' is a literal.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
			for i < len(pattern) && pattern[i] == '*' {
				i++
			}
			continue
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				b.WriteString(`\[`)
				break
			}
			b.WriteString(charClass(pattern[i+1 : j]))
			i = j + 1
			continue
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
		i++
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func charClass(body string) string {
	var b strings.Builder
	b.WriteByte('[')
	if strings.HasPrefix(body, "!") {
		b.WriteByte('^')
		body = body[1:]
	} else if strings.HasPrefix(body, "^") {
		b.WriteString(`\^`)
		body = body[1:]
	}
	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '\\', '[', ']':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(']')
	return b.String()
}
