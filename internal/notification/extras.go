package notification

import (
	"fmt"
	"image"
	"strings"
)

// Extras keys.
const (
	ExtraTitle                 = "title"
	ExtraTitleBig              = "title_big"
	ExtraText                  = "text"
	ExtraBigText               = "big_text"
	ExtraSubText               = "sub_text"
	ExtraProgress              = "progress"
	ExtraProgressMax           = "progress_max"
	ExtraProgressIndeterminate = "progress_indeterminate"
	ExtraShowChronometer       = "show_chronometer"
	ExtraPicture               = "picture"
)

// Extras is the untyped key/value bag attached to a notification. The typed
// getters never fail: a missing key or a value of the wrong dynamic type
// yields the documented default.
type Extras map[string]any

// String returns the value for key as a string ("" by default). Byte slices
// and fmt.Stringer values are converted.
func (e Extras) String(key string) string {
	switch v := e[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Int returns the value for key as an int (0 by default). Numeric types
// from JSON or D-Bus decoding are accepted.
func (e Extras) Int(key string) int {
	switch v := e[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Bool returns the value for key as a bool (false by default).
func (e Extras) Bool(key string) bool {
	switch v := e[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	default:
		return false
	}
}

// Image returns the value for key as an image (nil by default).
func (e Extras) Image(key string) image.Image {
	img, _ := e[key].(image.Image)
	return img
}

// Title, BigTitle, Text, BigText and SubText are trimmed; "" by default.
func (e Extras) Title() string    { return strings.TrimSpace(e.String(ExtraTitle)) }
func (e Extras) BigTitle() string { return strings.TrimSpace(e.String(ExtraTitleBig)) }
func (e Extras) Text() string     { return strings.TrimSpace(e.String(ExtraText)) }
func (e Extras) BigText() string  { return strings.TrimSpace(e.String(ExtraBigText)) }
func (e Extras) SubText() string  { return strings.TrimSpace(e.String(ExtraSubText)) }

func (e Extras) Progress() int               { return e.Int(ExtraProgress) }
func (e Extras) ProgressMax() int            { return e.Int(ExtraProgressMax) }
func (e Extras) ProgressIndeterminate() bool { return e.Bool(ExtraProgressIndeterminate) }
func (e Extras) ShowChronometer() bool       { return e.Bool(ExtraShowChronometer) }
func (e Extras) Picture() image.Image        { return e.Image(ExtraPicture) }

// With returns a copy of e with key set to v.
func (e Extras) With(key string, v any) Extras {
	out := make(Extras, len(e)+1)
	for k, x := range e {
		out[k] = x
	}
	out[key] = v
	return out
}
