// Package xmlpath streams an XML document and reports every text node
// together with the path of open elements that encloses it.
package xmlpath

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

// Path is the stack of open element local names, outermost first.
type Path []string

// Leaf returns the innermost element name, or "" for an empty path.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Has reports whether name appears anywhere in the path.
func (p Path) Has(name string) bool {
	for _, e := range p {
		if e == name {
			return true
		}
	}
	return false
}

// Under reports whether the leaf is leaf and ancestor is one of its enclosing elements.
// An empty ancestor matches any path.
func (p Path) Under(ancestor string, leaf string) bool {
	if p.Leaf() != leaf {
		return false
	}
	if ancestor == "" {
		return true
	}
	return p[:len(p)-1].Has(ancestor)
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Visitor receives the trimmed text of a node and the path enclosing it.
// The path slice is reused between calls and must be copied if retained.
type Visitor func(text string, path Path)

// Walk decodes r and calls visit for every non-blank text node.
// Attributes are not reported. Malformed input returns an error wrapping models.ErrXmlParse.
func Walk(r io.Reader, visit Visitor) error {
	dec := xml.NewDecoder(r)
	// Payloads are decoded to UTF-8 before they get here, whatever the prolog says.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var path Path
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if len(path) > 0 {
				return fmt.Errorf("%w: unexpected end of document inside <%s>", models.ErrXmlParse, path.Leaf())
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrXmlParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		case xml.CharData:
			if len(path) == 0 {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			visit(text, path)
		}
	}
}

func WalkString(s string, visit Visitor) error {
	return Walk(strings.NewReader(s), visit)
}

func WalkBytes(b []byte, visit Visitor) error {
	return Walk(bytes.NewReader(b), visit)
}
