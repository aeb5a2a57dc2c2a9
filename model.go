package yessql

import "reflect"

// Document is the persistence-layer header row that anchors a serialized
// entity blob. The row owns no payload itself; the serialized
// entity lives in document storage keyed by Id.
type Document struct {
	Id   int64
	Type string
}

// IndexRow is embedded anonymously by generated index-row struct
// definitions so the session can reject attempts to Save them directly,
// mirroring the Document check.
type IndexRow struct{}

func (IndexRow) isIndexRow() {}

type indexMarker interface {
	isIndexRow()
}

// IsDocument reports whether v is a Document value or pointer.
func IsDocument(v any) bool {
	switch v.(type) {
	case Document, *Document:
		return true
	default:
		return false
	}
}

// IsIndexRow reports whether v embeds IndexRow.
func IsIndexRow(v any) bool {
	_, ok := v.(indexMarker)
	return ok
}

// SimplifiedTypeName returns the assembly/package-independent name of v's
// runtime type, e.g. "Person" rather than
// "github.com/me/app.Person".
func SimplifiedTypeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
