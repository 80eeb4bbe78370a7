package LiteralEval

import (
	"fmt"
	"strconv"
	"strings"
)

// LiteralEval turns a command line value into a JSON-compatible Go value:
// bool, nil, int64, float64, string or []interface{} for "[a, b]" lists.
// Anything unrecognised is returned as a bare string.
func LiteralEval(s string) (interface{}, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		return "", nil
	}

	switch s {
	case "True", "true", "on":
		return true, nil
	case "False", "false", "off":
		return false, nil
	case "None", "null":
		return nil, nil
	}

	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		return num, nil
	}
	if num, err := strconv.ParseFloat(s, 64); err == nil {
		return num, nil
	}

	if len(s) >= 2 && ((s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"')) {
		return s[1 : len(s)-1], nil
	}

	if s[0] == '[' {
		if s[len(s)-1] != ']' {
			return nil, fmt.Errorf("unterminated list: %s", s)
		}
		return parseList(s)
	}

	return s, nil
}

func parseList(s string) ([]interface{}, error) {
	s = strings.TrimSpace(s[1 : len(s)-1])
	result := []interface{}{}
	if s == "" {
		return result, nil
	}

	for _, item := range splitByComma(s) {
		val, err := LiteralEval(item)
		if err != nil {
			return nil, err
		}
		result = append(result, val)
	}
	return result, nil
}

func splitByComma(s string) []string {
	var result []string
	start := 0
	depth := 0
	quote := rune(0)

	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '[':
			depth++
		case r == ']':
			depth--
		case r == ',' && depth == 0:
			result = append(result, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(result, strings.TrimSpace(s[start:]))
}
