package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
)

type valueKind int

const (
	kindScalar valueKind = iota
	kindObject
	kindArray
)

// jsonValue keeps object keys in document order, which map decoding loses.
type jsonValue struct {
	kind     valueKind
	key      string
	scalar   string
	children []jsonValue
}

func parseOrdered(data []byte) (jsonValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return jsonValue{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return jsonValue{}, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (jsonValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return jsonValue{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := jsonValue{kind: kindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return jsonValue{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return jsonValue{}, fmt.Errorf("object key is %T", keyTok)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return jsonValue{}, err
				}
				child.key = key
				v.children = append(v.children, child)
			}
			if _, err := dec.Token(); err != nil {
				return jsonValue{}, err
			}
			return v, nil
		case '[':
			v := jsonValue{kind: kindArray}
			for i := 0; dec.More(); i++ {
				child, err := decodeValue(dec)
				if err != nil {
					return jsonValue{}, err
				}
				child.key = strconv.Itoa(i)
				v.children = append(v.children, child)
			}
			if _, err := dec.Token(); err != nil {
				return jsonValue{}, err
			}
			return v, nil
		}
		return jsonValue{}, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return jsonValue{scalar: strconv.Quote(t)}, nil
	case json.Number:
		return jsonValue{scalar: t.String()}, nil
	case bool:
		return jsonValue{scalar: strconv.FormatBool(t)}, nil
	case nil:
		return jsonValue{scalar: "null"}, nil
	}
	return jsonValue{}, fmt.Errorf("unexpected token %T", tok)
}

// nodes lays the value out as the children of a details group: scalars are
// "key: value" lines, containers become nested groups.
func (v jsonValue) nodes(key string) []*Node {
	if v.kind == kindScalar {
		return []*Node{{Key: key, Text: v.scalar, Leaf: true}}
	}
	if len(v.children) == 0 {
		return []*Node{{Key: key, Text: v.emptyForm(), Leaf: true}}
	}
	out := make([]*Node, 0, len(v.children))
	for i, child := range v.children {
		// The position keeps duplicate names apart; escaping keeps "a/b"
		// from reading as a nested path.
		childKey := key + "/" + strconv.Itoa(i) + ":" + url.PathEscape(child.key)
		switch {
		case child.kind == kindScalar:
			out = append(out, &Node{Key: childKey, Text: child.key + ": " + child.scalar, Leaf: true})
		case len(child.children) == 0:
			out = append(out, &Node{Key: childKey, Text: child.key + ": " + child.emptyForm(), Leaf: true})
		default:
			out = append(out, &Node{Key: childKey, Text: child.key + " " + child.sizeLabel(), Children: child.nodes(childKey)})
		}
	}
	return out
}

func (v jsonValue) emptyForm() string {
	if v.kind == kindArray {
		return "[]"
	}
	return "{}"
}

func (v jsonValue) sizeLabel() string {
	n := len(v.children)
	noun := "items"
	if n == 1 {
		noun = "item"
	}
	if v.kind == kindArray {
		return fmt.Sprintf("[%d %s]", n, noun)
	}
	return fmt.Sprintf("{%d %s}", n, noun)
}

func compactJSON(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
