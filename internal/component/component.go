// Package component models styled chat text: colored segments with optional
// click and hover metadata, nested via Extra. The JSON shape matches what the
// rest of the network speaks, so a component survives a publish/receive round
// trip byte-for-byte in meaning.
package component

import (
	"strings"
)

// Component is one node of a styled-text tree.
type Component struct {
	Text          string      `json:"text"`
	Color         string      `json:"color,omitempty"`
	Bold          *bool       `json:"bold,omitempty"`
	Italic        *bool       `json:"italic,omitempty"`
	Underlined    *bool       `json:"underlined,omitempty"`
	Strikethrough *bool       `json:"strikethrough,omitempty"`
	Obfuscated    *bool       `json:"obfuscated,omitempty"`
	Insertion     string      `json:"insertion,omitempty"`
	ClickEvent    *ClickEvent `json:"clickEvent,omitempty"`
	HoverEvent    *HoverEvent `json:"hoverEvent,omitempty"`
	Extra         []Component `json:"extra,omitempty"`
}

// ClickEvent runs when a player clicks the text segment.
type ClickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

// HoverEvent shows when a player hovers the text segment.
type HoverEvent struct {
	Action   string     `json:"action"`
	Contents *Component `json:"contents"`
}

// Text builds a plain unstyled component.
func Text(s string) Component {
	return Component{Text: s}
}

// Colored builds a single-color component.
func Colored(s, color string) Component {
	return Component{Text: s, Color: color}
}

// Append returns a copy of c with the given children appended to Extra.
func (c Component) Append(children ...Component) Component {
	c.Extra = append(append([]Component(nil), c.Extra...), children...)
	return c
}

// PlainText flattens the component tree to its raw text, dropping all styling.
// Used for console logging and for the plain-text mirror on private packets.
func (c Component) PlainText() string {
	var b strings.Builder
	c.appendPlain(&b)
	return b.String()
}

func (c Component) appendPlain(b *strings.Builder) {
	b.WriteString(c.Text)
	for _, child := range c.Extra {
		child.appendPlain(b)
	}
}
