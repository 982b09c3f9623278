// Package filter parses filter expressions (JSON trees or parenthesized text)
// and compiles them into SQL predicates against a model.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"resourcegraph/internal/apierr"
)

// JunctionKind is the boolean combinator of a Junction.
type JunctionKind string

const (
	And JunctionKind = "and"
	Or  JunctionKind = "or"
)

// Node is a Leaf or a Junction.
type Node interface {
	json.Marshaler
	node()
}

// Leaf compares a field with an argument, another field, or (for has/any)
// a nested filter on a relation.
type Leaf struct {
	Field string
	Op    string
	// Arg is the comparison argument. HasArg distinguishes an explicit null
	// from an absent argument.
	Arg    any
	HasArg bool
	// OtherField names a second field of the same model to compare against.
	OtherField string
	// Sub is the nested filter of a has/any leaf.
	Sub Node
}

// Junction combines child nodes with AND or OR.
type Junction struct {
	Kind     JunctionKind
	Children []Node
}

func (*Leaf) node()     {}
func (*Junction) node() {}

// MarshalJSON renders the leaf in the same shape ParseJSON accepts.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	out := map[string]any{"name": l.Field, "op": l.Op}
	switch {
	case l.Sub != nil:
		out["val"] = l.Sub
	case l.OtherField != "":
		out["field"] = l.OtherField
	case l.HasArg:
		out["val"] = l.Arg
	}
	return json.Marshal(out)
}

// MarshalJSON renders the junction as {"and": [...]} or {"or": [...]}.
func (j *Junction) MarshalJSON() ([]byte, error) {
	children := j.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(map[string]any{string(j.Kind): children})
}

// Encode renders a filter list as JSON.
func Encode(nodes []Node) (string, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseJSON decodes a filter list. A JSON array is a list of nodes combined
// with AND; a single JSON object is a one-element list.
func ParseJSON(data []byte) ([]Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, apierr.Wrap(apierr.ParseException, err, "invalid filter JSON")
	}
	if dec.More() {
		return nil, apierr.NewParseError("invalid filter JSON: trailing data")
	}
	return FromValue(raw)
}

// FromValue converts already-decoded JSON (a list or an object) into nodes.
func FromValue(raw any) ([]Node, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		nodes := make([]Node, 0, len(v))
		for i, item := range v {
			n, err := nodeFromValue(item, fmt.Sprintf("[%d]", i))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		return nodes, nil
	case map[string]any:
		n, err := nodeFromValue(v, "")
		if err != nil {
			return nil, err
		}
		return []Node{n}, nil
	}
	return nil, apierr.NewParseError("filter must be a JSON array or object, got %s", describe(raw))
}

func nodeFromValue(raw any, at string) (Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apierr.NewParseError("filter%s: expected an object, got %s", at, describe(raw))
	}

	for _, kind := range []JunctionKind{And, Or} {
		children, ok := obj[string(kind)]
		if !ok {
			continue
		}
		if len(obj) != 1 {
			return nil, apierr.NewParseError("filter%s: %q must be the only key of a junction, got %s", at, kind, keys(obj))
		}
		list, ok := children.([]any)
		if !ok {
			return nil, apierr.NewParseError("filter%s.%s: expected an array, got %s", at, kind, describe(children))
		}
		if len(list) == 0 {
			return nil, apierr.NewParseError("filter%s.%s: junction has no children", at, kind)
		}
		j := &Junction{Kind: kind, Children: make([]Node, 0, len(list))}
		for i, item := range list {
			child, err := nodeFromValue(item, fmt.Sprintf("%s.%s[%d]", at, kind, i))
			if err != nil {
				return nil, err
			}
			j.Children = append(j.Children, child)
		}
		return j, nil
	}

	for k := range obj {
		switch k {
		case "name", "op", "val", "field":
		default:
			return nil, apierr.NewParseError("filter%s: unexpected key %q", at, k)
		}
	}

	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return nil, apierr.NewParseError("filter%s: missing field name", at)
	}
	opName, ok := obj["op"].(string)
	if !ok || opName == "" {
		return nil, apierr.NewParseError("filter%s: missing operator for %q", at, name)
	}
	op, ok := lookupOperator(opName)
	if !ok {
		return nil, apierr.NewParseError("filter%s: unknown operator %q", at, opName).WithField(name)
	}

	leaf := &Leaf{Field: name, Op: op.name}
	val, hasVal := obj["val"]
	other, hasOther := obj["field"]
	if hasVal && hasOther {
		return nil, apierr.NewParseError("filter%s: %q sets both val and field", at, name).WithField(name)
	}
	if hasOther {
		otherName, ok := other.(string)
		if !ok || otherName == "" {
			return nil, apierr.NewParseError("filter%s: field must be a field name", at).WithField(name)
		}
		leaf.OtherField = otherName
	}

	if op.arity == aritySubExpression {
		if !hasVal {
			return nil, apierr.NewParseError("filter%s: %s on %q requires a nested filter in val", at, op.name, name).WithField(name)
		}
		sub, err := nodeFromValue(val, at+".val")
		if err != nil {
			return nil, err
		}
		leaf.Sub = sub
		return leaf, nil
	}

	if hasVal {
		leaf.Arg = val
		leaf.HasArg = true
	}
	return leaf, nil
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	case string:
		return "a string"
	case json.Number, float64:
		return "a number"
	case bool:
		return "a boolean"
	}
	return fmt.Sprintf("%T", v)
}

func keys(obj map[string]any) string {
	out := make([]string, 0, len(obj))
	for k := range obj {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
