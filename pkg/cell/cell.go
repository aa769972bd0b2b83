package cell

import "github.com/shisoft/Nebuchadnezzar/pkg/ids"

// Cell is a schema-typed record addressed by Id. Body holds the decoded
// field tree keyed by field name; the on-the-wire encoding of Body is
// schema-driven and lives in package schema (Schema.PlanWrite with
// WritePlan.Apply to encode, Schema.Decode to decode)
// to avoid a schema<->cell import cycle while keeping the codec logic next
// to the Field tree it walks.
type Cell struct {
	Header Header
	Id     ids.Id
	Body   map[string]Value
}

// EncodedLen returns how many bytes an encoded cell takes: header + fixed
// region + tail.
func EncodedLen(fixedLen, tailLen int) int {
	return HeaderSize + fixedLen + tailLen
}
