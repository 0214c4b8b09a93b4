package notion

import (
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
)

// PlainText returns the text of the named property, or "" when it is
// missing or has a type with no text form. Both decoded (pointer) and
// hand-built (value) properties are accepted.
func PlainText(props notionapi.Properties, name string) string {
	p, ok := props[name]
	if !ok || p == nil {
		return ""
	}
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return richText(v.Title)
	case notionapi.TitleProperty:
		return richText(v.Title)
	case *notionapi.RichTextProperty:
		return richText(v.RichText)
	case notionapi.RichTextProperty:
		return richText(v.RichText)
	case *notionapi.EmailProperty:
		return v.Email
	case notionapi.EmailProperty:
		return v.Email
	case *notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	case notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	case *notionapi.SelectProperty:
		return v.Select.Name
	case notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	case notionapi.StatusProperty:
		return v.Status.Name
	case *notionapi.URLProperty:
		return v.URL
	case notionapi.URLProperty:
		return v.URL
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case notionapi.NumberProperty:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return ""
}

// Number returns the named number property.
func Number(props notionapi.Properties, name string) (float64, bool) {
	switch v := props[name].(type) {
	case *notionapi.NumberProperty:
		return v.Number, true
	case notionapi.NumberProperty:
		return v.Number, true
	}
	return 0, false
}

func richText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}
