package render

import "strings"

var htmlEntities = []string{
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
}

var (
	htmlReplacer = strings.NewReplacer(htmlEntities...)

	// Attribute values also lose raw whitespace that would survive
	// parsing but break ids and URLs.
	attrReplacer = strings.NewReplacer(append(append([]string(nil), htmlEntities...),
		"\n", "&#10;",
		"\r", "&#13;",
		"\t", "&#9;",
	)...)
)

// EscapeHTML escapes text for safe inclusion in HTML content.
// Pagelet markup is trusted and never passed through here; it is used
// for titles, ids and asset URLs that end up in the page shell.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

// EscapeAttr escapes text for a double-quoted attribute value, such as a
// placeholder id or an asset href.
func EscapeAttr(s string) string {
	return attrReplacer.Replace(s)
}
