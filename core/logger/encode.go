package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// encodeLine renders fields in order; keys missing from order follow in
// lexical order. The result has no trailing newline.
func encodeLine(format logFormat, fields map[string]any, order []string) ([]byte, error) {
	keys := orderedKeys(fields, order)
	var buf bytes.Buffer
	if format == formatJSON {
		buf.WriteByte('{')
	}
	for i, key := range keys {
		if format == formatJSON {
			if i > 0 {
				buf.WriteByte(',')
			}
			val, err := json.Marshal(fields[key])
			if err != nil {
				return nil, fmt.Errorf("logger: encode %s: %w", key, err)
			}
			buf.WriteString(strconv.Quote(key))
			buf.WriteByte(':')
			buf.Write(val)
			continue
		}
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(kvValue(fields[key]))
	}
	if format == formatJSON {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func orderedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	listed := make(map[string]bool, len(order))
	for _, key := range order {
		if listed[key] {
			continue
		}
		listed[key] = true
		if _, ok := fields[key]; ok {
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range fields {
		if !listed[key] {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

func kvValue(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
