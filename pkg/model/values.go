package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// DateRange is a pair of `YYYY-MM-DD` dates. Either end may be empty while
// the user is still picking.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Complete reports whether both endpoints are set.
func (r DateRange) Complete() bool {
	return strings.TrimSpace(r.From) != "" && strings.TrimSpace(r.To) != ""
}

// Empty reports whether neither endpoint is set.
func (r DateRange) Empty() bool {
	return strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.To) == ""
}

// FileRef references an attachment picked by the user. Data carries the raw
// bytes sent with multipart submissions and is never serialised to JSON.
type FileRef struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// Values maps field keys to their current value.
type Values map[string]any

// Clone returns a shallow copy; FileRef pointers are copied by value so edits
// to the copy never reach the original.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for key, value := range v {
		if file, ok := value.(*FileRef); ok && file != nil {
			dup := *file
			value = &dup
		}
		out[key] = value
	}
	return out
}

// String returns the value stored under key as text. Non-string values are
// formatted; missing keys yield "".
func (v Values) String(key string) string {
	return Text(v[key])
}

// Normalize coerces raw into the Go representation used for fieldType.
// Unsupported input collapses to the zero value for the type.
func Normalize(fieldType FieldType, raw any) any {
	switch fieldType {
	case FieldTypeBoolean:
		switch typed := raw.(type) {
		case bool:
			return typed
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
			return err == nil && parsed
		default:
			return false
		}
	case FieldTypeDateRange:
		switch typed := raw.(type) {
		case DateRange:
			return typed
		case *DateRange:
			if typed == nil {
				return DateRange{}
			}
			return *typed
		case map[string]any:
			return DateRange{From: Text(typed["from"]), To: Text(typed["to"])}
		case map[string]string:
			return DateRange{From: typed["from"], To: typed["to"]}
		default:
			return DateRange{}
		}
	case FieldTypeFile:
		switch typed := raw.(type) {
		case *FileRef:
			if typed == nil {
				return (*FileRef)(nil)
			}
			dup := *typed
			return &dup
		case FileRef:
			return &typed
		default:
			return (*FileRef)(nil)
		}
	case FieldTypeDerived:
		switch typed := raw.(type) {
		case int:
			return typed
		case int64:
			return int(typed)
		case float64:
			return int(typed)
		default:
			return 0
		}
	default:
		return Text(raw)
	}
}

// Text formats a value as a string.
func Text(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case *FileRef:
		if typed == nil {
			return ""
		}
		return typed.Name
	case DateRange:
		if typed.Empty() {
			return ""
		}
		return typed.From + "/" + typed.To
	default:
		return fmt.Sprint(value)
	}
}

// IsEmpty reports whether value counts as "not filled in".
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case bool:
		return !typed
	case DateRange:
		return !typed.Complete()
	case *FileRef:
		return typed == nil || strings.TrimSpace(typed.Name) == ""
	default:
		return false
	}
}

// Equal compares two normalised values.
func Equal(a, b any) bool {
	fa, aFile := a.(*FileRef)
	fb, bFile := b.(*FileRef)
	if aFile || bFile {
		if fa == nil || fb == nil {
			return fa == nil && fb == nil
		}
		return fa.Name == fb.Name && fa.Size == fb.Size && fa.MIMEType == fb.MIMEType
	}
	return reflect.DeepEqual(a, b)
}
