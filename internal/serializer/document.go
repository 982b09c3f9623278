package serializer

import (
	"encoding/json"

	"resourcegraph/internal/pagination"
	"resourcegraph/internal/schema"
)

// Document is the serialized form of one instance.
type Document struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes"`
	// Relationships is nil for nested documents.
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
	Links         *DocumentLinks           `json:"links,omitempty"`
	// Meta carries the row count of a grouped row.
	Meta map[string]any `json:"meta,omitempty"`
}

// DocumentLinks are the links of a single resource.
type DocumentLinks struct {
	Self string `json:"self"`
}

// Relationship is the envelope of one relation of a document.
type Relationship struct {
	Type       schema.Cardinality
	Evaluation schema.Loading
	Links      pagination.Links
	// Data is nil, a *Document or a []*Document. It is only rendered when
	// Expanded is set, and then rendered even when nil.
	Data     any
	Expanded bool
	// Meta is the cursor of an expanded lazy relation.
	Meta *pagination.Cursor
}

// MarshalJSON renders the envelope, emitting data only for expanded relations.
func (r *Relationship) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Type       schema.Cardinality `json:"type"`
		Evaluation schema.Loading     `json:"evaluation"`
		Links      pagination.Links   `json:"links"`
		Data       *json.RawMessage   `json:"data,omitempty"`
		Meta       *pagination.Cursor `json:"meta,omitempty"`
	}
	out := envelope{Type: r.Type, Evaluation: r.Evaluation, Links: r.Links, Meta: r.Meta}
	if r.Expanded {
		raw := json.RawMessage("null")
		if r.Data != nil {
			encoded, err := json.Marshal(r.Data)
			if err != nil {
				return nil, err
			}
			raw = encoded
		}
		out.Data = &raw
	}
	return json.Marshal(out)
}
