// Package adf decodes and builds the tree-structured rich-text documents
// used by the issue tracker for descriptions and comments.
package adf

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node is one element of a document tree. The set of variants is closed:
// Text, HardBreak, Rule, Media, MediaSingle and Container.
type Node interface {
	node()
}

// Text is inline literal text.
type Text struct {
	Text string
}

// HardBreak is a line break inside a block.
type HardBreak struct{}

// Rule is a horizontal rule.
type Rule struct{}

// Media references an uploaded file by its media id.
type Media struct {
	ID string
}

// MediaSingle wraps a media node for layout.
type MediaSingle struct {
	Content []Node
}

// Container is any other node type. Nodes the decoder does not know about
// land here with their children, so unknown leaves contribute nothing.
type Container struct {
	Type    string
	Content []Node
}

func (Text) node()        {}
func (HardBreak) node()   {}
func (Rule) node()        {}
func (Media) node()       {}
func (MediaSingle) node() {}
func (Container) node()   {}

// wireNode is the JSON shape of a node.
type wireNode struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []wireNode     `json:"content,omitempty"`
}

func (w wireNode) toNode() Node {
	switch w.Type {
	case "text":
		return Text{Text: w.Text}
	case "hardBreak":
		return HardBreak{}
	case "rule":
		return Rule{}
	case "media":
		id, _ := w.Attrs["id"].(string)
		return Media{ID: id}
	case "mediaSingle":
		return MediaSingle{Content: toNodes(w.Content)}
	default:
		return Container{Type: w.Type, Content: toNodes(w.Content)}
	}
}

func toNodes(in []wireNode) []Node {
	if len(in) == 0 {
		return nil
	}
	out := make([]Node, 0, len(in))
	for _, w := range in {
		out = append(out, w.toNode())
	}
	return out
}

// Body is a description or comment body. Older records carry a plain
// string instead of a document.
type Body struct {
	Doc   Node
	Plain string
}

// IsPlain reports whether the body was a legacy plain string.
func (b Body) IsPlain() bool {
	return b.Doc == nil
}

// UnmarshalJSON accepts either a document object or a JSON string.
func (b *Body) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = Body{}
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("failed to decode plain body: %w", err)
		}
		*b = Body{Plain: s}
		return nil
	}

	var w wireNode
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return fmt.Errorf("failed to decode document body: %w", err)
	}
	*b = Body{Doc: w.toNode()}
	return nil
}

// Document is an outbound document root.
type Document struct {
	Type    string      `json:"type"`
	Version int         `json:"version"`
	Content []Paragraph `json:"content"`
}

// Paragraph is an outbound paragraph block.
type Paragraph struct {
	Type    string       `json:"type"`
	Content []InlineText `json:"content,omitempty"`
}

// InlineText is an outbound text node.
type InlineText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FromText wraps text in a document with a single paragraph. An empty
// string yields an empty paragraph, since text nodes must be non-empty.
func FromText(text string) Document {
	p := Paragraph{Type: "paragraph"}
	if text != "" {
		p.Content = []InlineText{{Type: "text", Text: text}}
	}
	return Document{
		Type:    "doc",
		Version: 1,
		Content: []Paragraph{p},
	}
}
