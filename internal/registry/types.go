// Package registry implements the Variable Registry (spec.md §4.G): the
// descriptor table plus a last-known-raw-value map, grounded on
// original_source's src/core/VarEngine.cpp and guarded the way the teacher's
// internal/hub.Hub guards its client map (sync.RWMutex).
package registry

// DataType is the wire type of a VariableDescriptor's underlying storage.
type DataType int

const (
	I8 DataType = iota
	U8
	I16
	U16
	I32
	U32
	F32
	F64
)

func (t DataType) String() string {
	switch t {
	case I8:
		return "i8"
	case U8:
		return "u8"
	case I16:
		return "i16"
	case U16:
		return "u16"
	case I32:
		return "i32"
	case U32:
		return "u32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// VariableDescriptor describes one addressable microcontroller variable
// (spec.md §3).
type VariableDescriptor struct {
	Name      string
	Address   uint32
	Type      DataType
	ArraySize uint32 // default 1
	Scale     float64
	Unit      string
}
