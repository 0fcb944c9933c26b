package caldav

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nsDAV       = "DAV:"
	nsCalDAV    = "urn:ietf:params:xml:ns:caldav"
	nsCalServer = "http://calendarserver.org/ns/"
	nsApple     = "http://apple.com/ns/ical/"
)

const namespaces = `xmlns:d="` + nsDAV + `" xmlns:c="` + nsCalDAV + `" xmlns:cs="` + nsCalServer + `" xmlns:i="` + nsApple + `"`

const (
	principalProps = `<d:prop><d:current-user-principal/></d:prop>`
	homeSetProps   = `<d:prop><c:calendar-home-set/></d:prop>`
	calendarProps  = `<d:prop>` +
		`<d:displayname/>` +
		`<c:supported-calendar-component-set/>` +
		`<cs:getctag/>` +
		`<c:calendar-description/>` +
		`<i:calendar-color/>` +
		`<d:resourcetype/>` +
		`</d:prop>`
)

func propfindBody(props string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<d:propfind ` + namespaces + `>` + props + `</d:propfind>`
}

func todoQueryBody(filter string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<c:calendar-query ` + namespaces + `>` +
		`<d:prop><d:getetag/><c:calendar-data/></d:prop>` +
		`<c:filter><c:comp-filter name="VCALENDAR"><c:comp-filter name="VTODO">` +
		filter +
		`</c:comp-filter></c:comp-filter></c:filter>` +
		`</c:calendar-query>`
}

// element is a namespace resolved XML element with its direct character
// data.
type element struct {
	name     xml.Name
	attrs    []xml.Attr
	text     string
	children []*element
}

func parseTree(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	var root *element
	var stack []*element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			el := &element{name: tok.Name, attrs: tok.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("more than one root element")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(tok)
			}
		}
	}
	if root == nil {
		return nil, errors.New("empty document")
	}
	return root, nil
}

func (el *element) is(local, ns string) bool {
	return el.name.Local == local && el.name.Space == ns
}

func (el *element) child(local, ns string) *element {
	for _, c := range el.children {
		if c.is(local, ns) {
			return c
		}
	}
	return nil
}

func (el *element) all(local, ns string) []*element {
	var out []*element
	for _, c := range el.children {
		if c.is(local, ns) {
			out = append(out, c)
		}
	}
	return out
}

func (el *element) attr(local string) string {
	for _, a := range el.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (el *element) trimmed() string { return strings.TrimSpace(el.text) }

// followTree walks a dotted path of child names, all in namespace ns, taking
// the first match at each step.
func followTree(el *element, path, ns string) (*element, error) {
	cur := el
	for _, step := range strings.Split(path, ".") {
		next := cur.child(step, ns)
		if next == nil {
			return nil, fmt.Errorf("%w: {%s}%s in %s", ErrMissingNode, ns, step, path)
		}
		cur = next
	}
	return cur, nil
}

// findProp looks a property up across every successful propstat of a
// multistatus response. Servers report unknown properties in a separate 404
// propstat, which must not hide the ones that were found.
func findProp(response *element, local, ns string) *element {
	for _, ps := range response.all("propstat", nsDAV) {
		if status := ps.child("status", nsDAV); status != nil && !statusOK(status.trimmed()) {
			continue
		}
		prop := ps.child("prop", nsDAV)
		if prop == nil {
			continue
		}
		if p := prop.child(local, ns); p != nil {
			return p
		}
	}
	return nil
}

// statusOK reads an HTTP status line such as "HTTP/1.1 200 OK".
func statusOK(line string) bool {
	fields := strings.Fields(line)
	return len(fields) >= 2 && strings.HasPrefix(fields[1], "2")
}

func responses(root *element) ([]*element, error) {
	if !root.is("multistatus", nsDAV) {
		return nil, fmt.Errorf("%w: {%s}multistatus root, got {%s}%s", ErrMissingNode, nsDAV, root.name.Space, root.name.Local)
	}
	return root.all("response", nsDAV), nil
}
