package wire

import "github.com/google/uuid"

// Package wire is host-agnostic: every type below is a plain Go value with
// no dependency on any particular runtime. A concrete VM is bound to the
// codec only through the TypeOracle interface (oracle.go) and the
// conversion functions a host package (such as vmwire) provides.
//
// A wire value is anything the encoder's type switch in encode.go
// recognizes: the Go primitive kinds (bool, intN, uintN, float32/64,
// string), Char, and the pointer types declared here. Dispatch is a
// closed variant set, not open interface virtual calls, per the design
// notes on encoder extensibility.

// Undef is the sentinel written where the spec's UNDEFREF marks a field
// that was never assigned. A field decoded as Undef stays absent.
type Undef struct{}

// AbsentValue is the singleton for the literal band's "absent value"
// (LitAbsent) — distinct from Undef, which marks an omitted field rather
// than a first-class value.
var AbsentValue = &struct{ absent byte }{}

// Char is a Unicode code point, wire-distinct from a bare int32.
type Char rune

// Float16 is an IEEE-754 half-precision float, carried as its raw bits.
// The host is responsible for any conversion to/from a native half-float
// representation; the codec only moves the bits.
type Float16 uint16

// Int128 holds a 128-bit two's-complement integer as high:low words.
type Int128 struct {
	Hi int64
	Lo uint64
}

// UInt128 holds an unsigned 128-bit integer as high:low words.
type UInt128 struct {
	Hi uint64
	Lo uint64
}

// Symbol is a potentially-shared interned name. Symbols longer than 7
// bytes are canonicalized by content — every occurrence of the same text
// shares one slot, whichever *Symbol pointer carries it — mirroring how
// strings longer than 7 bytes are canonicalized (§4.4).
type Symbol struct {
	Name string
}

// Tuple is a fixed-size, back-referenced sequence. The wire format has no
// interned tag for a non-empty tuple type regardless of arity.
type Tuple struct {
	Elems []any
}

// SimpleVector is a homogeneous pointer-element sequence with a 32-bit
// length, always — no 8-bit short form the way Tuple has.
type SimpleVector struct {
	Elems []any
}

// ArrayElemKind distinguishes bit-packed element storage from
// pointer-element storage for Array.
type ArrayElemKind int

const (
	// ArrayElemBytes indicates the element type is a fixed-width scalar
	// (commonly byte) stored as a flat Bytes buffer.
	ArrayElemBytes ArrayElemKind = iota
	// ArrayElemBool indicates boolean elements, run-length encoded on the
	// wire (§4.4's RLE special case) but exposed here as plain bools.
	ArrayElemBool
	// ArrayElemPointer indicates elements are themselves wire values,
	// each encoded recursively; absent elements are Undef.
	ArrayElemPointer
)

// Array is a back-referenced, shaped, typed collection.
type Array struct {
	ElemKind ArrayElemKind
	ElemType *TypeDescriptor // nil when ElemKind == ArrayElemBytes and the
	// element type is the implicit byte type
	Shape []int // one dimension for a 1-D array, N for N-D

	Bytes []byte // valid when ElemKind == ArrayElemBytes
	Bools []bool // valid when ElemKind == ArrayElemBool, len == product(Shape)
	Elems []any  // valid when ElemKind == ArrayElemPointer, Undef for absent slots
}

// Record is any nominal aggregate: a VM object, a primitive boxed value,
// or an immutable struct-like value. Mutable records are back-referenced
// and written with REF_OBJECT so cycles through their fields resolve via
// slot reservation before the fields are emitted; immutable and primitive
// records are written with OBJECT and are never shared by identity.
type Record struct {
	Type     *TypeDescriptor
	Fields   []any // may contain Undef
	Mutable  bool
	Primitive bool // true: raw-byte payload instead of per-field encoding
	Raw      []byte
}

// DictEntry is one key/value pair of a Dict or IDDict.
type DictEntry struct {
	Key   any
	Value any
}

// Dict is a value-hashed dictionary: keys are compared/deduplicated by
// content equality on the host side, not identity.
type Dict struct {
	Type    *TypeDescriptor
	Entries []DictEntry
}

// IDDict is an identity-hashed dictionary (wire tag IDDICT): keys are
// compared by identity on the host side. Two structurally equal but
// distinct-identity keys are distinct entries.
type IDDict struct {
	Type    *TypeDescriptor
	Entries []DictEntry
}

// TypeDescriptorKind selects which of the three type-descriptor shapes
// (§4.6) a TypeDescriptor carries.
type TypeDescriptorKind int

const (
	DataType TypeDescriptorKind = iota
	FullDataType
	WrapperDataType
)

// TypeDescriptor names or synthesizes a type for the reader.
type TypeDescriptor struct {
	Kind   TypeDescriptorKind
	Module *Module
	Name   string
	Params []*TypeDescriptor // only meaningful for Kind == DataType

	// TypeName is populated when Kind == FullDataType: the synthesized
	// type-name record for a sandbox or anonymous-function type.
	TypeName *TypeNameRecord
}

// TypeNameRecord is the bundle of naming/structural information
// sufficient to synthesize a nominal type on the reader side (§4.6).
// Deduplicated across a stream by ObjectNumber.
type TypeNameRecord struct {
	ObjectNumber uint64

	Name             string
	FieldNames       []string
	Super            *TypeDescriptor
	Params           []string
	FieldTypes       []*TypeDescriptor
	HasSingleton     bool
	Abstract         bool
	MutableType      bool
	NumInitFields    int
	MaxDispatchArity int

	// Methods attached to an anonymous callable type, reinstalled into
	// the reader's sandbox namespace on decode.
	Methods []*MethodDescriptor

	// constructing is true from the moment decodeTypeNameRecord stores
	// this record's placeholder until every field below it has been
	// read. A Super or FieldTypes reference that loops back to this same
	// ObjectNumber while it is still set finds an incomplete record
	// (§7 error kind 5) and must fail with CycleConstructionError rather
	// than hand the half-built record to SynthesizeType.
	constructing bool
}

// Module names a naming path: a root package identity — (uuid-or-nil,
// name symbol) — followed by a sequence of child names.
type Module struct {
	RootUUID *uuid.UUID
	RootName string
	Path     []string
}

// BlockDescriptor is anonymous-function (closure) metadata.
type BlockDescriptor struct {
	Arity       int
	NumTemps    int
	NumCaptures int
	Literals    []any
	Bytecode    []byte
	Source      string
}

// MethodInferenceInfo is the version-gated optional struct added across
// format versions (inference-limit heuristics, inlining cost, purity
// flags). Nil when the producing version predates versionInferenceInfo
// or when the host runtime does not track this information.
type MethodInferenceInfo struct {
	InferenceLimit int
	InlineCost     int
	Pure           bool
}

// MethodDescriptor is a method definition / call-frame descriptor.
// Reserve-slotted like any other mutable reference type.
type MethodDescriptor struct {
	ObjectNumber uint64

	Module    *Module
	Name      string
	File      string
	Line      int
	Signature string
	SlotNames []string
	ArgCount  int
	VarArgs   bool
	Opaque    bool // true: dispatch table is external, not serializable

	Inference *MethodInferenceInfo

	Body      *string // nil when absent
	Generator *MethodDescriptor
	// RecursionRelation corresponds to a field some historical producers
	// wrote under a misspelled name (method.recursion_relation). This
	// implementation always writes and reads the corrected name; no
	// producer in this codebase ever wrote the misspelled form, so
	// decode.go has no legacy-tag fallback to stay tolerant of.
	RecursionRelation *string
}

// TaskState is the scheduler state a TaskRecord was captured in.
type TaskState int

const (
	TaskRunnable TaskState = iota
	TaskDone
	TaskFailed
	// taskRunning is never written to the wire; serializing a task still
	// in this state is an UnsupportedValueError.
	taskRunning
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	case taskRunning:
		return "running"
	default:
		return "unknown"
	}
}

// TaskRecord is a captured, non-running task. Body is typically a
// *BlockDescriptor.
type TaskRecord struct {
	Body          any
	Locals        *Dict
	State         TaskState
	Result        any
	Exception     any
	HasException  bool
}

// GlobalRef names a global binding in some module.
type GlobalRef struct {
	Module *Module
	Name   string

	// Full is set when the target lives in the reader's sandbox module
	// or is a locally-constant anonymous-function binding; Type then
	// carries the FULL_GLOBALREF type payload instead of module+symbol.
	Full bool
	Type *TypeDescriptor
}
