package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	singleQuoteRe   = regexp.MustCompile(`'([^']*)'`)
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRe  = regexp.MustCompile(`/\*.*?\*/`)
)

// Repair attempts to make malformed JSON parseable. Cheap targeted fixes
// run first in a fixed order; the jsonrepair library is the last resort.
// Returns the repaired text and the names of the strategies that changed it.
func Repair(raw string) (string, []string, error) {
	var probe interface{}
	if json.Unmarshal([]byte(raw), &probe) == nil {
		return raw, nil, nil
	}

	repaired := raw
	var applied []string

	apply := func(name string, fn func(string) string) {
		out := fn(repaired)
		if out != repaired {
			repaired = out
			applied = append(applied, name)
		}
	}

	apply("trailing_commas", func(s string) string {
		return trailingCommaRe.ReplaceAllString(s, "$1")
	})
	apply("comments_removed", stripComments)
	apply("completion", completeBrackets)
	apply("key_quotes", func(s string) string {
		return unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	})
	apply("single_quotes", func(s string) string {
		return singleQuoteRe.ReplaceAllString(s, `"$1"`)
	})

	if json.Unmarshal([]byte(repaired), &probe) == nil {
		return repaired, applied, nil
	}

	if fixed, err := jsonrepair.JSONRepair(repaired); err == nil {
		applied = append(applied, "jsonrepair_library")
		if json.Unmarshal([]byte(fixed), &probe) == nil {
			return fixed, applied, nil
		}
		repaired = fixed
	}

	return repaired, applied, fmt.Errorf("payload still invalid after %d repair strategies", len(applied))
}

func stripComments(s string) string {
	if !strings.Contains(s, "//") && !strings.Contains(s, "/*") {
		return s
	}
	s = lineCommentRe.ReplaceAllString(s, "")
	return blockCommentRe.ReplaceAllString(s, "")
}

// completeBrackets closes unterminated objects/arrays in LIFO order
func completeBrackets(s string) string {
	var stack []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == s[i] {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
