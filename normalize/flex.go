package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString decodes any JSON scalar, the first usable element of an array,
// or the name-like field of an object. It never fails, so one odd field
// does not sink the whole record.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = FlexString(scalarString(data))
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// flexStrings decodes a string or an array of scalars.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var out []string
	if len(data) > 0 && data[0] == '[' {
		var elems []json.RawMessage
		if json.Unmarshal(data, &elems) == nil {
			for _, e := range elems {
				if s := scalarString(e); s != "" {
					out = append(out, s)
				}
			}
		}
	} else if s := scalarString(data); s != "" {
		out = append(out, s)
	}
	*f = out
	return nil
}

// flexFloat decodes a number or a numeric string.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.ReplaceAll(scalarString(data), ",", "")
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
		f.Value, f.Valid = v, true
	}
	return nil
}

func (f flexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// flexBool decodes true/false, "true"/"yes"/"1" and numbers.
type flexBool struct {
	Value bool
	Valid bool
}

func (f *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(scalarString(data)) {
	case "true", "yes", "1":
		f.Value, f.Valid = true, true
	case "false", "no", "0":
		f.Value, f.Valid = false, true
	}
	return nil
}

var objectNameKeys = []string{"name", "text", "value", "title", "url", "href"}

func scalarString(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}

	switch data[0] {
	case '"':
		var s string
		if json.Unmarshal(data, &s) == nil {
			return strings.TrimSpace(s)
		}
	case '[':
		var elems []json.RawMessage
		if json.Unmarshal(data, &elems) == nil {
			for _, e := range elems {
				if s := scalarString(e); s != "" {
					return s
				}
			}
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) == nil {
			for _, k := range objectNameKeys {
				if v, ok := obj[k]; ok {
					if s := scalarString(v); s != "" {
						return s
					}
				}
			}
		}
	case 'n':
		return ""
	default:
		var n json.Number
		if json.Unmarshal(data, &n) == nil {
			return n.String()
		}
		var b bool
		if json.Unmarshal(data, &b) == nil {
			return strconv.FormatBool(b)
		}
	}
	return ""
}
