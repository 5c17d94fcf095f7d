package panel

import (
	"encoding/xml"
	"strings"
)

// Element is a generic XML node used to build request packets and walk responses.
type Element struct {
	XMLName    xml.Name
	Attributes []xml.Attr `xml:",any,attr"`
	Text       string     `xml:",chardata"`
	Children   []Element  `xml:",any"`
}

// Field is an ordered name/value pair rendered as <name>value</name>.
type Field struct {
	Name  string
	Value string
}

// Filter narrows a request to matching entities; an empty filter matches all of them.
type Filter []Field

// NewElement builds an element with optional children.
func NewElement(name string, children ...Element) Element {
	return Element{XMLName: xml.Name{Local: name}, Children: children}
}

// NewTextElement builds a leaf element carrying text.
func NewTextElement(name string, text string) Element {
	return Element{XMLName: xml.Name{Local: name}, Text: text}
}

// FieldElements renders fields as leaf elements in order.
func FieldElements(fields []Field) []Element {
	elements := make([]Element, 0, len(fields))
	for _, field := range fields {
		elements = append(elements, NewTextElement(field.Name, field.Value))
	}
	return elements
}

// Name returns the local element name.
func (element Element) Name() string {
	return element.XMLName.Local
}

// Value returns the element text without surrounding whitespace.
func (element Element) Value() string {
	return strings.TrimSpace(element.Text)
}

// Child returns the first direct child with the given name.
func (element Element) Child(name string) (Element, bool) {
	for _, child := range element.Children {
		if child.Name() == name {
			return child, true
		}
	}
	return Element{}, false
}

// ChildValue returns the trimmed text of the first direct child with the given name.
func (element Element) ChildValue(name string) string {
	child, found := element.Child(name)
	if !found {
		return ""
	}
	return child.Value()
}

// Find returns the first descendant with the given name in document order.
func (element Element) Find(name string) (Element, bool) {
	for _, child := range element.Children {
		if child.Name() == name {
			return child, true
		}
		if descendant, found := child.Find(name); found {
			return descendant, true
		}
	}
	return Element{}, false
}

// FindAll returns every descendant with the given name in document order.
func (element Element) FindAll(name string) []Element {
	var matches []Element
	for _, child := range element.Children {
		if child.Name() == name {
			matches = append(matches, child)
		}
		matches = append(matches, child.FindAll(name)...)
	}
	return matches
}

// Path follows direct children by name.
func (element Element) Path(names ...string) (Element, bool) {
	current := element
	for _, name := range names {
		next, found := current.Child(name)
		if !found {
			return Element{}, false
		}
		current = next
	}
	return current, true
}
