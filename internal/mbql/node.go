// Package mbql models MBQL query documents and visualization settings as a
// tagged-variant tree. JSON documents arrive as map[string]any / []any from
// encoding/json; Parse lifts them into typed nodes so that reference
// rewriting is a structural match over known variants, and Value renders a
// tree back into plain JSON-shaped values.
package mbql

// Node is one variant of the expression tree.
type Node interface {
	// Value renders the node back into a JSON-shaped Go value.
	Value() any
}

// Scalar is a leaf holding any non-composite value (numbers, strings,
// booleans, nil). The original value is kept as-is so untouched references
// round-trip byte-identical.
type Scalar struct {
	Val any
}

func (s *Scalar) Value() any { return s.Val }

// Array is a composite node for lists that are not a recognized reference
// shape.
type Array struct {
	Items []Node
}

func (a *Array) Value() any {
	out := make([]any, len(a.Items))
	for i, item := range a.Items {
		out[i] = item.Value()
	}
	return out
}

// Object is a composite node for JSON objects.
type Object struct {
	Entries map[string]Node
}

func (o *Object) Value() any {
	out := make(map[string]any, len(o.Entries))
	for k, v := range o.Entries {
		out[k] = v.Value()
	}
	return out
}

// Get returns the child node for key.
func (o *Object) Get(key string) (Node, bool) {
	n, ok := o.Entries[key]
	return n, ok
}

// FieldRef is the recognized ["field", id-or-name, options] reference shape.
// ByName marks references that address the field by name rather than id;
// those work across databases and are never rewritten. Options is nil when
// the source array had only two elements; OptionsNull distinguishes an
// explicit trailing null from an absent third element.
type FieldRef struct {
	ID          int
	Name        string
	ByName      bool
	Options     *Object
	OptionsNull bool
}

func (f *FieldRef) Value() any {
	var ref any = f.ID
	if f.ByName {
		ref = f.Name
	}
	switch {
	case f.Options != nil:
		return []any{"field", ref, f.Options.Value()}
	case f.OptionsNull:
		return []any{"field", ref, nil}
	default:
		return []any{"field", ref}
	}
}

// AsInt normalizes JSON numbers to int. encoding/json decodes numbers as
// float64; documents built in Go code carry int directly.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// Parse lifts a JSON-shaped value into the variant tree.
func Parse(v any) Node {
	switch val := v.(type) {
	case map[string]any:
		entries := make(map[string]Node, len(val))
		for k, child := range val {
			entries[k] = Parse(child)
		}
		return &Object{Entries: entries}
	case []any:
		if ref, ok := parseFieldRef(val); ok {
			return ref
		}
		items := make([]Node, len(val))
		for i, child := range val {
			items[i] = Parse(child)
		}
		return &Array{Items: items}
	default:
		return &Scalar{Val: v}
	}
}

func parseFieldRef(val []any) (*FieldRef, bool) {
	if len(val) < 2 || len(val) > 3 {
		return nil, false
	}
	tag, ok := val[0].(string)
	if !ok || tag != "field" {
		return nil, false
	}

	ref := &FieldRef{}
	switch {
	case isInt(val[1]):
		ref.ID, _ = AsInt(val[1])
	default:
		name, ok := val[1].(string)
		if !ok {
			return nil, false
		}
		ref.Name = name
		ref.ByName = true
	}

	if len(val) == 3 {
		switch opts := val[2].(type) {
		case nil:
			ref.OptionsNull = true
		case map[string]any:
			ref.Options = Parse(opts).(*Object)
		default:
			// Third element is neither options nor null: not a reference.
			return nil, false
		}
	}
	return ref, true
}

func isInt(v any) bool {
	_, ok := AsInt(v)
	return ok
}

// Walk visits every node of the tree depth-first, parents before children.
func Walk(n Node, visit func(Node)) {
	visit(n)
	switch node := n.(type) {
	case *Object:
		for _, child := range node.Entries {
			Walk(child, visit)
		}
	case *Array:
		for _, child := range node.Items {
			Walk(child, visit)
		}
	case *FieldRef:
		if node.Options != nil {
			Walk(node.Options, visit)
		}
	}
}
