package schema

import "encoding/json"

// Document is the result of a document workflow: a value for every field the
// Descriptor declares, or a degraded variant that additionally carries an
// error marker and the raw model output for diagnosis.
//
// A degraded Document is still structurally complete: every declared field
// is present, possibly empty, so callers always receive the shape they
// asked for.
type Document struct {
	// Fields maps descriptor field names to generated values.
	Fields map[string]string

	// Err is the degradation marker; empty on success.
	Err string

	// Raw holds the unparsed model output of a failed generation, when any
	// was produced.
	Raw string
}

// NewDocument builds a successful Document from conforming output.
func NewDocument(fields map[string]string) Document {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Document{Fields: copied}
}

// Degraded builds a degraded Document: every field the descriptor declares
// with the values in partial (missing ones empty), plus the error marker and
// raw output.
func Degraded(desc *Descriptor, partial map[string]string, errMsg, raw string) Document {
	fields := make(map[string]string, desc.Len())
	for _, f := range desc.Fields() {
		fields[f.Name] = partial[f.Name]
	}
	return Document{Fields: fields, Err: errMsg, Raw: raw}
}

// IsDegraded reports whether the document carries an error marker.
func (doc Document) IsDegraded() bool { return doc.Err != "" }

// FieldNames returns the document's field names in unspecified order.
func (doc Document) FieldNames() []string {
	names := make([]string, 0, len(doc.Fields))
	for name := range doc.Fields {
		names = append(names, name)
	}
	return names
}

// MarshalJSON flattens the fields into a single object. Degraded documents
// gain "error" and, when available, "raw_response" keys alongside the
// declared fields.
func (doc Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(doc.Fields)+2)
	for k, v := range doc.Fields {
		out[k] = v
	}
	if doc.Err != "" {
		out["error"] = doc.Err
		if doc.Raw != "" {
			out["raw_response"] = doc.Raw
		}
	}
	return json.Marshal(out)
}
