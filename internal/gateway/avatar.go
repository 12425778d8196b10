package gateway

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Initials returns up to two upper-case initials of name, "?" when it has none.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

// InitialsURL is the address of the generated avatar for name.
func InitialsURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/avatars/initials?" + url.Values{"name": {name}}.Encode()
}

// PreviewURL is the preview address of file id served from baseURL.
func PreviewURL(baseURL, id string) string {
	v := url.Values{}
	v.Set("width", strconv.Itoa(PreviewWidth))
	v.Set("height", strconv.Itoa(PreviewHeight))
	v.Set("gravity", PreviewGravity)
	v.Set("quality", strconv.Itoa(PreviewQuality))
	return strings.TrimRight(baseURL, "/") + "/v1/files/" + url.PathEscape(id) + "/preview?" + v.Encode()
}
