// Package dictionary post-processes raw transcripts with the user's own
// vocabulary: replacement terms rewrite what the recognizer heard, glossary
// terms are only handed to the recognizer as a prompt.
package dictionary

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Term struct {
	Term string `yaml:"term"`
	// Replacement is written in place of Term. Empty makes Term a glossary
	// entry.
	Replacement string `yaml:"replacement,omitempty"`
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

type Dictionary struct {
	terms []Term
	rules []rule
}

// New compiles terms. Matching is whole-word and case-insensitive.
func New(terms []Term) (*Dictionary, error) {
	d := &Dictionary{}
	for _, t := range terms {
		word := strings.TrimSpace(t.Term)
		if word == "" {
			return nil, fmt.Errorf("dictionary term is empty")
		}
		d.terms = append(d.terms, Term{Term: word, Replacement: t.Replacement})
		if t.Replacement == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + boundary(word, true) + regexp.QuoteMeta(word) + boundary(word, false))
		if err != nil {
			return nil, fmt.Errorf("dictionary term %q: %w", word, err)
		}
		d.rules = append(d.rules, rule{re: re, repl: t.Replacement})
	}
	return d, nil
}

// boundary adds \b only next to word characters; `\bC++\b` would never match.
func boundary(word string, leading bool) string {
	var r rune
	if leading {
		r, _ = utf8.DecodeRuneInString(word)
	} else {
		r, _ = utf8.DecodeLastRuneInString(word)
	}
	if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
		return `\b`
	}
	return ""
}

func (d *Dictionary) Len() int { return len(d.terms) }

// Apply rewrites replacement terms and capitalises the first letter.
func (d *Dictionary) Apply(text string) string {
	text = strings.TrimSpace(text)
	if d != nil {
		for _, r := range d.rules {
			text = r.re.ReplaceAllLiteralString(text, r.repl)
		}
	}
	return capitalize(text)
}

// Prompt lists every term's preferred spelling for the recognizer.
func (d *Dictionary) Prompt() string {
	if d == nil || len(d.terms) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(d.terms))
	words := make([]string, 0, len(d.terms))
	for _, t := range d.terms {
		w := t.Term
		if t.Replacement != "" {
			w = t.Replacement
		}
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return strings.Join(words, ", ")
}

func capitalize(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			if unicode.IsUpper(r) {
				return s
			}
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return s
		}
	}
	return s
}
