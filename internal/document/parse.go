package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxNesting bounds how deep Parse will descend into arrays and objects.
const MaxNesting = 1000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse errors.
var (
	ErrEmptyDocument = errors.New("empty document")
	ErrTrailingData  = errors.New("unexpected data after top-level value")
	ErrTooDeep       = errors.New("document nesting too deep")
)

// Parse decodes a JSON document into a Value, preserving object member order.
// A leading UTF-8 byte order mark is ignored. Duplicate keys keep the position
// of their first occurrence and the value of their last.
func Parse(data []byte) (Value, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return Value{}, ErrEmptyDocument
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	p := parser{dec: dec}
	v, err := p.value(0)
	if err != nil {
		return Value{}, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return Value{}, ErrTrailingData
		}
		return Value{}, fmt.Errorf("%w: %v", ErrTrailingData, err)
	}

	return v, nil
}

type parser struct {
	dec *json.Decoder
}

func (p *parser) token() (json.Token, error) {
	tok, err := p.dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

func (p *parser) value(depth int) (Value, error) {
	tok, err := p.token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return p.object(depth + 1)
		case '[':
			return p.array(depth + 1)
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func (p *parser) object(depth int) (Value, error) {
	if depth > MaxNesting {
		return Value{}, ErrTooDeep
	}

	members := []Member{}
	index := make(map[string]int)
	for p.dec.More() {
		tok, err := p.token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected object key, got %v", tok)
		}

		v, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}

		if i, seen := index[key]; seen {
			members[i].Value = v
			continue
		}
		index[key] = len(members)
		members = append(members, Member{Key: key, Value: v})
	}

	if _, err := p.token(); err != nil {
		return Value{}, err
	}
	return Object(members...), nil
}

func (p *parser) array(depth int) (Value, error) {
	if depth > MaxNesting {
		return Value{}, ErrTooDeep
	}

	items := []Value{}
	for p.dec.More() {
		v, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}

	if _, err := p.token(); err != nil {
		return Value{}, err
	}
	return Array(items...), nil
}
