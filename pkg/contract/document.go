package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the type tag of a Document.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Member is one key/value pair of an object document.
type Member struct {
	Key   string
	Value Document
}

// Document is an immutable JSON value. The zero Document is null.
//
// Objects keep their members in source order. Numbers keep their source text so
// integers beyond float64 precision survive a round trip.
type Document struct {
	kind    Kind
	b       bool
	s       string
	items   []Document
	members []Member
}

// Null returns the null document.
func Null() Document { return Document{} }

// Bool returns a boolean document.
func Bool(v bool) Document { return Document{kind: KindBool, b: v} }

// Int returns an integer number document.
func Int(v int64) Document {
	return Document{kind: KindNumber, s: strconv.FormatInt(v, 10)}
}

// Float returns a number document. JSON has no representation for NaN or
// infinities; those become null.
func Float(v float64) Document {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Null()
	}
	return Document{kind: KindNumber, s: strconv.FormatFloat(v, 'g', -1, 64)}
}

// Number returns a number document from its JSON text.
func Number(text string) (Document, error) {
	if !isJSONNumber(text) {
		return Document{}, fmt.Errorf("invalid JSON number %q", text)
	}
	return Document{kind: KindNumber, s: text}, nil
}

// String returns a string document.
func String(v string) Document { return Document{kind: KindString, s: v} }

// Array returns an array document holding a copy of items.
func Array(items ...Document) Document {
	return Document{kind: KindArray, items: append([]Document(nil), items...)}
}

// Object returns an object document. Later members replace earlier ones with the same key.
func Object(members ...Member) Document {
	d := Document{kind: KindObject, members: make([]Member, 0, len(members))}
	for _, m := range members {
		d.members = setMember(d.members, m.Key, m.Value)
	}
	return d
}

func setMember(members []Member, key string, value Document) []Member {
	for i := range members {
		if members[i].Key == key {
			members[i].Value = value
			return members
		}
	}
	return append(members, Member{Key: key, Value: value})
}

// Kind returns the type tag.
func (d Document) Kind() Kind { return d.kind }

// IsNull reports whether the document is null.
func (d Document) IsNull() bool { return d.kind == KindNull }

// Len returns the number of array items or object members, and zero otherwise.
func (d Document) Len() int {
	switch d.kind {
	case KindArray:
		return len(d.items)
	case KindObject:
		return len(d.members)
	}
	return 0
}

func (d Document) wrongType(want string) error {
	return &FieldError{Want: want, Got: d.kind}
}

// AsBool returns the boolean value.
func (d Document) AsBool() (bool, error) {
	if d.kind != KindBool {
		return false, d.wrongType("bool")
	}
	return d.b, nil
}

// AsNumber returns the number's JSON text.
func (d Document) AsNumber() (json.Number, error) {
	if d.kind != KindNumber {
		return "", d.wrongType("number")
	}
	return json.Number(d.s), nil
}

// AsInt64 returns the number as an int64. Integral values written with a
// fraction or exponent ("4.0", "1e3") are accepted.
func (d Document) AsInt64() (int64, error) {
	if d.kind != KindNumber {
		return 0, d.wrongType("integer")
	}
	if v, err := strconv.ParseInt(d.s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(d.s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, &FieldError{Want: "integer", Got: KindNumber}
	}
	return int64(f), nil
}

// AsFloat64 returns the number as a float64.
func (d Document) AsFloat64() (float64, error) {
	if d.kind != KindNumber {
		return 0, d.wrongType("number")
	}
	f, err := strconv.ParseFloat(d.s, 64)
	if err != nil {
		return 0, &FieldError{Want: "float64", Got: KindNumber}
	}
	return f, nil
}

// AsString returns the string value.
func (d Document) AsString() (string, error) {
	if d.kind != KindString {
		return "", d.wrongType("string")
	}
	return d.s, nil
}

// Items returns a copy of the array items.
func (d Document) Items() ([]Document, error) {
	if d.kind != KindArray {
		return nil, d.wrongType("array")
	}
	return append([]Document(nil), d.items...), nil
}

// Index returns the i-th array item.
func (d Document) Index(i int) (Document, error) {
	if d.kind != KindArray {
		return Document{}, d.wrongType("array")
	}
	if i < 0 || i >= len(d.items) {
		return Document{}, &FieldError{Path: strconv.Itoa(i), Missing: true}
	}
	return d.items[i], nil
}

// Keys returns the object keys in order, or nil for non-objects.
func (d Document) Keys() []string {
	if d.kind != KindObject {
		return nil
	}
	keys := make([]string, len(d.members))
	for i, m := range d.members {
		keys[i] = m.Key
	}
	return keys
}

// Has reports whether d is an object with the given key.
func (d Document) Has(key string) bool {
	_, ok := d.member(key)
	return ok
}

func (d Document) member(key string) (Document, bool) {
	if d.kind != KindObject {
		return Document{}, false
	}
	for _, m := range d.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Document{}, false
}

// Field returns the value stored under key.
func (d Document) Field(key string) (Document, error) {
	if d.kind != KindObject {
		return Document{}, d.wrongType("object")
	}
	v, ok := d.member(key)
	if !ok {
		return Document{}, &FieldError{Path: key, Missing: true}
	}
	return v, nil
}

// Lookup walks nested objects and arrays. Array steps are decimal indexes.
func (d Document) Lookup(path ...string) (Document, error) {
	cur := d
	for i, step := range path {
		var next Document
		var err error
		if cur.kind == KindArray {
			idx, convErr := strconv.Atoi(step)
			if convErr != nil {
				err = &FieldError{Want: "object", Got: KindArray}
			} else {
				next, err = cur.Index(idx)
			}
		} else {
			next, err = cur.Field(step)
		}
		if err != nil {
			var fe *FieldError
			if errors.As(err, &fe) && !fe.Missing {
				return Document{}, withPath(err, path[:i])
			}
			return Document{}, withPath(err, path[:i+1])
		}
		cur = next
	}
	return cur, nil
}

func withPath(err error, path []string) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		out := *fe
		out.Path = strings.Join(path, ".")
		return &out
	}
	return err
}

// GetInt64 looks up path and converts the value to int64.
func (d Document) GetInt64(path ...string) (int64, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt64()
	return n, withPath(err, path)
}

// GetFloat64 looks up path and converts the value to float64.
func (d Document) GetFloat64(path ...string) (float64, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return 0, err
	}
	f, err := v.AsFloat64()
	return f, withPath(err, path)
}

// GetString looks up path and returns the string value.
func (d Document) GetString(path ...string) (string, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	return s, withPath(err, path)
}

// GetBool looks up path and returns the boolean value.
func (d Document) GetBool(path ...string) (bool, error) {
	v, err := d.Lookup(path...)
	if err != nil {
		return false, err
	}
	b, err := v.AsBool()
	return b, withPath(err, path)
}

// With returns a copy of the object with key set to value. A null receiver is
// treated as an empty object. The receiver is never modified.
func (d Document) With(key string, value Document) (Document, error) {
	switch d.kind {
	case KindNull:
		return Object(Member{Key: key, Value: value}), nil
	case KindObject:
		members := make([]Member, len(d.members), len(d.members)+1)
		copy(members, d.members)
		return Document{kind: KindObject, members: setMember(members, key, value)}, nil
	}
	return Document{}, d.wrongType("object")
}

// Without returns a copy of the object with key removed.
func (d Document) Without(key string) (Document, error) {
	if d.kind != KindObject {
		return Document{}, d.wrongType("object")
	}
	members := make([]Member, 0, len(d.members))
	for _, m := range d.members {
		if m.Key != key {
			members = append(members, m)
		}
	}
	return Document{kind: KindObject, members: members}, nil
}

// Append returns a copy of the array with items added at the end.
func (d Document) Append(items ...Document) (Document, error) {
	if d.kind != KindArray {
		return Document{}, d.wrongType("array")
	}
	out := make([]Document, 0, len(d.items)+len(items))
	out = append(append(out, d.items...), items...)
	return Document{kind: KindArray, items: out}, nil
}

// Equal reports structural equality. Object member order is ignored; numbers
// compare by value when their text differs.
func (d Document) Equal(o Document) bool {
	if d.kind != o.kind {
		return false
	}
	switch d.kind {
	case KindNull:
		return true
	case KindBool:
		return d.b == o.b
	case KindString:
		return d.s == o.s
	case KindNumber:
		if d.s == o.s {
			return true
		}
		a, errA := strconv.ParseFloat(d.s, 64)
		b, errB := strconv.ParseFloat(o.s, 64)
		return errA == nil && errB == nil && a == b
	case KindArray:
		if len(d.items) != len(o.items) {
			return false
		}
		for i := range d.items {
			if !d.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(d.members) != len(o.members) {
			return false
		}
		for _, m := range d.members {
			v, ok := o.member(m.Key)
			if !ok || !m.Value.Equal(v) {
				return false
			}
		}
		return true
	}
	return false
}

// Parse decodes exactly one JSON document from data.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	doc, err := decodeValue(dec)
	if err != nil {
		return Document{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return Document{}, err
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder) (Document, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Document{}, err
	}

	switch v := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		return Document{kind: KindNumber, s: string(v)}, nil
	case string:
		return String(v), nil
	case json.Delim:
		switch v {
		case '[':
			d := Document{kind: KindArray, items: []Document{}}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Document{}, err
				}
				d.items = append(d.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Document{}, err
			}
			return d, nil
		case '{':
			d := Document{kind: KindObject, members: []Member{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Document{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Document{}, fmt.Errorf("object key is %T, want string", keyTok)
				}
				value, err := decodeValue(dec)
				if err != nil {
					return Document{}, err
				}
				d.members = setMember(d.members, key, value)
			}
			if _, err := dec.Token(); err != nil {
				return Document{}, err
			}
			return d, nil
		}
	}
	return Document{}, fmt.Errorf("unexpected token %v", tok)
}

// AppendJSON appends the minimal JSON encoding of d to dst.
func (d Document) AppendJSON(dst []byte) []byte {
	switch d.kind {
	case KindBool:
		return strconv.AppendBool(dst, d.b)
	case KindNumber:
		return append(dst, d.s...)
	case KindString:
		return appendString(dst, d.s)
	case KindArray:
		dst = append(dst, '[')
		for i, item := range d.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = item.AppendJSON(dst)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, m := range d.members {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, m.Key)
			dst = append(dst, ':')
			dst = m.Value.AppendJSON(dst)
		}
		return append(dst, '}')
	}
	return append(dst, "null"...)
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	return d.AppendJSON(nil), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// String returns the minimal JSON encoding.
func (d Document) String() string {
	return string(d.AppendJSON(nil))
}

const hexDigits = "0123456789abcdef"

// appendString quotes s as a JSON string without HTML escaping.
// Invalid UTF-8 is replaced with U+FFFD.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			dst = append(dst, s[start:i]...)
			switch c {
			case '"', '\\':
				dst = append(dst, '\\', c)
			case '\n':
				dst = append(dst, '\\', 'n')
			case '\r':
				dst = append(dst, '\\', 'r')
			case '\t':
				dst = append(dst, '\\', 't')
			default:
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, s[start:i]...)
			dst = append(dst, "\ufffd"...)
			i += size
			start = i
			continue
		}
		i += size
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}

func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	var tok any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&tok); err != nil {
		return false
	}
	if _, ok := tok.(json.Number); !ok {
		return false
	}
	return !dec.More() && dec.InputOffset() == int64(len(s))
}
