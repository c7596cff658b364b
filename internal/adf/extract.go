package adf

import (
	"regexp"
	"strings"
)

// RuleMarker is emitted in place of a horizontal rule.
const RuleMarker = "---"

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// blockTypes end with a newline after their children.
var blockTypes = map[string]bool{
	"paragraph":  true,
	"heading":    true,
	"blockquote": true,
	"codeBlock":  true,
	"listItem":   true,
}

// Extract flattens body to plain text and collects the media ids it
// references, in document order. A legacy plain body is returned unchanged
// with no media ids.
func Extract(body Body) (string, []string) {
	if body.IsPlain() {
		return body.Plain, []string{}
	}
	return ExtractNode(body.Doc)
}

// ExtractNode flattens a document tree. Runs of three or more newlines are
// collapsed to two and the result is trimmed.
func ExtractNode(root Node) (string, []string) {
	var b strings.Builder
	mediaIDs := []string{}
	walk(root, &b, &mediaIDs)

	text := excessNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(text), mediaIDs
}

func walk(n Node, b *strings.Builder, mediaIDs *[]string) {
	switch v := n.(type) {
	case Text:
		b.WriteString(v.Text)
	case HardBreak:
		b.WriteString("\n")
	case Rule:
		b.WriteString("\n" + RuleMarker + "\n")
	case Media:
		if v.ID != "" {
			*mediaIDs = append(*mediaIDs, v.ID)
		}
	case MediaSingle:
		for _, child := range v.Content {
			walk(child, b, mediaIDs)
		}
	case Container:
		if len(v.Content) == 0 {
			return
		}
		for _, child := range v.Content {
			walk(child, b, mediaIDs)
		}
		if blockTypes[v.Type] {
			b.WriteString("\n")
		}
	}
}
