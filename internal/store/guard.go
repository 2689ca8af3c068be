package store

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrQueryNotAllowed is returned by CheckReadOnly.
var ErrQueryNotAllowed = errors.New("query not allowed")

// CheckReadOnly accepts exactly one statement whose first keyword is
// SELECT or WITH. Comments and a single trailing semicolon are allowed;
// semicolons inside string literals and quoted identifiers are ignored.
func CheckReadOnly(query string) error {
	body, err := stripStatement(query)
	if err != nil {
		return err
	}
	if body == "" {
		return fmt.Errorf("%w: empty statement", ErrQueryNotAllowed)
	}

	kw := firstKeyword(body)
	switch kw {
	case "SELECT", "WITH":
		return nil
	default:
		return fmt.Errorf("%w: only SELECT or WITH statements may run, got %s", ErrQueryNotAllowed, kw)
	}
}

// stripStatement removes comments and the trailing semicolon and fails on
// a second statement.
func stripStatement(query string) (string, error) {
	var sb strings.Builder
	var quote rune
	rs := []rune(query)
	ended := false

	for i := 0; i < len(rs); i++ {
		r := rs[i]

		if quote != 0 {
			sb.WriteRune(r)
			if r == quote {
				if i+1 < len(rs) && rs[i+1] == quote {
					sb.WriteRune(rs[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			sb.WriteRune(' ')
			continue
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			j := i + 2
			for j+1 < len(rs) && !(rs[j] == '*' && rs[j+1] == '/') {
				j++
			}
			if j+1 >= len(rs) {
				return "", fmt.Errorf("%w: unterminated comment", ErrQueryNotAllowed)
			}
			i = j + 1
			sb.WriteRune(' ')
			continue
		}

		if ended {
			if !unicode.IsSpace(r) {
				return "", fmt.Errorf("%w: multiple statements", ErrQueryNotAllowed)
			}
			continue
		}

		switch r {
		case '\'', '"', '`':
			quote = r
		case '[':
			quote = ']'
		case ';':
			ended = true
			continue
		}
		sb.WriteRune(r)
	}

	if quote != 0 {
		return "", fmt.Errorf("%w: unterminated quote", ErrQueryNotAllowed)
	}
	return strings.TrimSpace(sb.String()), nil
}

func firstKeyword(s string) string {
	s = strings.TrimLeft(s, "( \t\r\n")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}
