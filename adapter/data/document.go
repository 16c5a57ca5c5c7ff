// Package data contains the default [domain.Document] implementation and the
// JSON text form documents serialize to and from.
package data

import (
	"fmt"
	"iter"
	"maps"
	"reflect"
	"strings"
	"time"

	goreflect "github.com/goccy/go-reflect"

	"github.com/nestdb/nestdb/domain"
)

// TagName is the struct tag consulted when converting Go structs into
// documents.
const TagName = "nestdb"

var timeTyp = goreflect.TypeOf(*new(time.Time))

// M implements domain.Document by using a hashed map. Duplicates replace old
// values.
type M map[string]any

// NewDocument returns a new instance of [domain.Document].
func NewDocument(in any) (domain.Document, error) {
	if in == nil {
		return M{}, nil
	}
	switch t := in.(type) {
	case M:
		return t, nil
	case domain.Document:
		return t, nil
	}

	r := goreflect.ValueNoEscapeOf(in)
	k := r.Kind()
	for k == goreflect.Interface || k == reflect.Pointer {
		if r.IsNil() {
			return M{}, nil
		}
		r = r.Elem()
		k = r.Kind()
	}
	if k != goreflect.Struct && k != goreflect.Map {
		return nil, fmt.Errorf("expected map or struct, got %s", r.Type().String())
	}
	doc, err := parseReflect(r)
	if err != nil {
		return nil, err
	}
	return doc.(domain.Document), nil
}

func parseReflect(r goreflect.Value) (any, error) {
	for r.Kind() == reflect.Pointer || r.Kind() == goreflect.Interface {
		r = r.Elem()
	}
	switch r.Kind() {
	case goreflect.Invalid:
		return nil, nil
	case goreflect.Slice:
		if r.IsNil() {
			return nil, nil
		}
		fallthrough
	case goreflect.Array:
		return parseList(r)
	case goreflect.Struct:
		if r.Type() == timeTyp {
			return r.Interface(), nil
		}
		return parseStruct(r)
	case goreflect.Map:
		if r.IsNil() {
			return nil, nil
		}
		return parseMapReflect(r)
	case goreflect.Int, goreflect.Int8, goreflect.Int16, goreflect.Int32, goreflect.Int64:
		return r.Int(), nil
	case goreflect.Uint, goreflect.Uint8, goreflect.Uint16, goreflect.Uint32, goreflect.Uint64:
		return int64(r.Uint()), nil
	case goreflect.Float32, goreflect.Float64:
		return r.Float(), nil
	default:
		return r.Interface(), nil
	}
}

func parseStruct(r goreflect.Value) (domain.Document, error) {
	typ := r.Type()
	numField := r.NumField()

	res := make(M, numField)

	for n := range numField {
		field := typ.Field(n)
		if field.PkgPath != "" {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup(TagName); ok {
			if tag == "-" {
				continue
			}
			segments := strings.Split(tag, ",")
			if segments[0] != "" {
				name = segments[0]
			}
		}

		value, err := parseReflect(r.Field(n))
		if err != nil {
			return nil, err
		}
		res[name] = value
	}
	return res, nil
}

func parseMapReflect(v goreflect.Value) (domain.Document, error) {
	res := make(M, v.Len())
	for _, k := range v.MapKeys() {
		str := k.String()
		var err error
		if res[str], err = parseReflect(v.MapIndex(k)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func parseList(r goreflect.Value) (any, error) {
	length := r.Len()
	res := make([]any, length)
	for i := range length {
		v, err := parseReflect(r.Index(i))
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

// D implements domain.Document.
func (d M) D(key string) domain.Document {
	if doc, ok := d[key].(domain.Document); ok {
		return doc
	}
	return nil
}

// Get implements domain.Document.
func (d M) Get(key string) any {
	return d[key]
}

// Set implements domain.Document.
func (d M) Set(key string, value any) {
	d[key] = value
}

// Unset implements domain.Document.
func (d M) Unset(key string) {
	delete(d, key)
}

// Iter implements domain.Document.
func (d M) Iter() iter.Seq2[string, any] {
	return maps.All(d)
}

// Keys implements domain.Document.
func (d M) Keys() iter.Seq[string] {
	return maps.Keys(d)
}

// Values implements domain.Document.
func (d M) Values() iter.Seq[any] {
	return maps.Values(d)
}

// Has implements domain.Document.
func (d M) Has(key string) bool {
	_, has := d[key]
	return has
}

// Len implements domain.Document.
func (d M) Len() int {
	return len(d)
}

// UnmarshalJSON implements json.Unmarshaler. Integral numbers parse as int64
// so index key type checks and comparisons stay exact.
func (d *M) UnmarshalJSON(input []byte) error {
	doc := &parser{data: input, n: len(input)}
	v, err := doc.parse()
	if err != nil {
		return err
	}
	obj, ok := v.(M)
	if !ok {
		return fmt.Errorf("expected object, received %T", v)
	}
	*d = obj
	return nil
}
