package wire

import (
	"math"

	"github.com/google/uuid"
)

func uuidFromBytes(b []byte) (uuid.UUID, error) { return uuid.FromBytes(b) }

// Encode is the single polymorphic entry point for the value encoder
// (§4.4). v must be one of the Go primitive kinds the codec recognizes
// or one of the pointer types declared in domain.go; anything else is an
// UnsupportedValueError.
func (w *Writer) Encode(v any) error {
	switch x := v.(type) {
	case nil:
		return &UnsupportedValueError{Kind: "nil", Reason: "untyped nil has no wire representation; use Undef{} for an absent field"}
	case Undef:
		return w.emitTag(TagUndefRef)
	case bool:
		if x {
			return w.emitTag(LitTrue)
		}
		return w.emitTag(LitFalse)
	case int8:
		return w.emitFixed(TagInt8, []byte{byte(x)})
	case int16:
		return w.emitFixed(TagInt16, be16(uint16(x)))
	case int32:
		return w.encodeInt32(x)
	case int64:
		return w.encodeInt64(x)
	case int:
		return w.encodeInt64(int64(x))
	case uint8:
		return w.emitFixed(TagUInt8, []byte{x})
	case uint16:
		return w.emitFixed(TagUInt16, be16(x))
	case uint32:
		return w.emitFixed(TagUInt32, be32(x))
	case uint64:
		return w.emitFixed(TagUInt64, be64(x))
	case Int128:
		return w.emitFixed(TagInt128, append(be64(uint64(x.Hi)), be64(x.Lo)...))
	case UInt128:
		return w.emitFixed(TagUInt128, append(be64(x.Hi), be64(x.Lo)...))
	case Float16:
		return w.emitFixed(TagFloat16, be16(uint16(x)))
	case float32:
		return w.emitFixed(TagFloat32, be32(math.Float32bits(x)))
	case float64:
		return w.emitFixed(TagFloat64, be64(math.Float64bits(x)))
	case Char:
		return w.emitFixed(TagChar, be32(uint32(x)))
	case string:
		return w.encodeString(x)
	case *Symbol:
		return encodeSymbolText(w, x.Name)
	case *Tuple:
		return w.encodeTuple(x)
	case *SimpleVector:
		return w.encodeSimpleVector(x)
	case *Array:
		return w.encodeArray(x)
	case *Record:
		return w.encodeRecord(x)
	case *Dict:
		return w.encodeDict(x)
	case *IDDict:
		return w.encodeIDDict(x)
	case *TypeDescriptor:
		return encodeTypeDescriptor(w, x)
	case *Module:
		return encodeModule(w, x)
	case *MethodDescriptor:
		return w.encodeMethodTopLevel(x)
	case *TaskRecord:
		return w.encodeTaskRecord(x)
	case *GlobalRef:
		return w.encodeGlobalRef(x)
	default:
		if x == AbsentValue {
			return w.emitTag(LitAbsent)
		}
		return &UnsupportedValueError{Kind: "unknown", Reason: "value has no recognized wire representation"}
	}
}

// encodeFieldOrUndef encodes a record/array field value, emitting
// UNDEFREF in place of a field that was never assigned.
func (w *Writer) encodeFieldOrUndef(v any) error {
	if v == nil {
		return w.emitTag(TagUndefRef)
	}
	if _, ok := v.(Undef); ok {
		return w.emitTag(TagUndefRef)
	}
	return w.Encode(v)
}

func (w *Writer) emitFixed(t Tag, payload []byte) error {
	if err := w.emitTag(t); err != nil {
		return err
	}
	return w.emitBytes(payload)
}

func (w *Writer) encodeInt32(v int32) error {
	if t, ok := LitInt32(v); ok {
		return w.emitTag(t)
	}
	return w.emitFixed(TagInt32, be32(uint32(v)))
}

func (w *Writer) encodeInt64(v int64) error {
	if t, ok := LitInt64(v); ok {
		return w.emitTag(t)
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return w.emitFixed(TagShortInt64, be32(uint32(int32(v))))
	}
	return w.emitFixed(TagInt64, be64(uint64(v)))
}

// encodeSymbolText is the shared symbol encoder used for *Symbol values,
// module path segments, type names, field names, and global-ref names —
// every place the format calls for a "symbol" is textually identical, so
// they all canonicalize into the same content-keyed slot table.
func encodeSymbolText(w *Writer, s string) error {
	if t, ok := InternedSymbolTag(s); ok {
		return w.emitTag(t)
	}
	if len(s) <= 7 {
		return writeSymbolBody(w, s)
	}
	if slot, found := w.tryBackrefCanonical(w.symbolSlots, s); found {
		return w.emitBackref(slot)
	}
	return writeSymbolBody(w, s)
}

func writeSymbolBody(w *Writer, s string) error {
	b := []byte(s)
	if len(b) <= 255 {
		if err := w.emitTag(TagSymbol); err != nil {
			return err
		}
		if err := w.emitByte(byte(len(b))); err != nil {
			return err
		}
		return w.emitBytes(b)
	}
	if err := w.emitTag(TagLongSymbol); err != nil {
		return err
	}
	if err := w.emitBytes(be32(uint32(len(b)))); err != nil {
		return err
	}
	return w.emitBytes(b)
}

// encodeString implements §4.4's string rule: short strings are inline
// and never shared; strings over 7 bytes are canonicalized by content
// and wrapped in SHARED_REF on first sight.
func (w *Writer) encodeString(s string) error {
	if len(s) <= 7 {
		return writeStringBody(w, s)
	}
	if slot, found := w.tryBackrefCanonical(w.stringSlots, s); found {
		return w.emitBackref(slot)
	}
	if err := w.emitTag(TagSharedRef); err != nil {
		return err
	}
	return writeStringBody(w, s)
}

func writeStringBody(w *Writer, s string) error {
	b := []byte(s)
	if len(b) <= 255 {
		if err := w.emitTag(TagString); err != nil {
			return err
		}
		if err := w.emitByte(byte(len(b))); err != nil {
			return err
		}
		return w.emitBytes(b)
	}
	if err := w.emitTag(TagLongString); err != nil {
		return err
	}
	if err := w.emitBytes(be32(uint32(len(b)))); err != nil {
		return err
	}
	return w.emitBytes(b)
}

func (w *Writer) encodeTuple(t *Tuple) error {
	if len(t.Elems) == 0 {
		return w.emitTag(LitEmptyTuple)
	}
	if slot, found := w.tryBackrefIdentity(t); found {
		return w.emitBackref(slot)
	}
	if len(t.Elems) <= 255 {
		if err := w.emitTag(TagTuple); err != nil {
			return err
		}
		if err := w.emitByte(byte(len(t.Elems))); err != nil {
			return err
		}
	} else {
		if err := w.emitTag(TagLongTuple); err != nil {
			return err
		}
		if err := w.emitBytes(be32(uint32(len(t.Elems)))); err != nil {
			return err
		}
	}
	for _, e := range t.Elems {
		if err := w.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) encodeSimpleVector(v *SimpleVector) error {
	if slot, found := w.tryBackrefIdentity(v); found {
		return w.emitBackref(slot)
	}
	if err := w.emitTag(TagSimpleVector); err != nil {
		return err
	}
	if err := w.emitBytes(be32(uint32(len(v.Elems)))); err != nil {
		return err
	}
	for _, e := range v.Elems {
		if err := w.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) encodeArray(a *Array) error {
	if slot, found := w.tryBackrefIdentity(a); found {
		return w.emitBackref(slot)
	}
	if err := w.emitTag(TagArray); err != nil {
		return err
	}
	if err := w.emitByte(byte(a.ElemKind)); err != nil {
		return err
	}
	if a.ElemKind != ArrayElemBytes {
		if err := encodeTypeDescriptor(w, a.ElemType); err != nil {
			return err
		}
	}
	if err := w.encodeShape(a.Shape); err != nil {
		return err
	}
	switch a.ElemKind {
	case ArrayElemBytes:
		return w.emitBytes(a.Bytes)
	case ArrayElemBool:
		return w.encodeBoolRuns(a.Bools)
	case ArrayElemPointer:
		for _, e := range a.Elems {
			if err := w.encodeFieldOrUndef(e); err != nil {
				return err
			}
		}
		return nil
	default:
		return &UnsupportedValueError{Kind: "Array", Reason: "unknown element kind"}
	}
}

// encodeShape writes a leading dimension-count byte (1 for a plain
// vector) followed by that many varint-encoded dimensions. §4.4 frames
// the 1-D case as "a single length" and the general case as "a tuple of
// dimensions", but both need a self-describing wire shape for the
// decoder to read back without foreknowledge of the array's rank, so
// this implementation unifies them behind one leading count byte.
func (w *Writer) encodeShape(shape []int) error {
	if err := w.emitByte(byte(len(shape))); err != nil {
		return err
	}
	for _, d := range shape {
		if err := writeVarInt(w.w, int64(d)); err != nil {
			return err
		}
	}
	return nil
}

// encodeBoolRuns implements the run-length special case: each byte is
// (value_bit<<7)|run_length, run_length capped at 127 so longer runs are
// split across multiple bytes.
func (w *Writer) encodeBoolRuns(bools []bool) error {
	i := 0
	for i < len(bools) {
		v := bools[i]
		run := 1
		for i+run < len(bools) && bools[i+run] == v && run < 127 {
			run++
		}
		b := byte(run)
		if v {
			b |= 1 << 7
		}
		if err := w.emitByte(b); err != nil {
			return err
		}
		i += run
	}
	return nil
}

func (w *Writer) encodeRecord(rec *Record) error {
	if rec.Primitive {
		if err := w.emitTag(TagObject); err != nil {
			return err
		}
		if err := encodeTypeDescriptor(w, rec.Type); err != nil {
			return err
		}
		return w.emitBytes(rec.Raw)
	}
	if rec.Mutable {
		slot, found := w.tryBackrefIdentity(rec)
		if found {
			return w.emitBackref(slot)
		}
		if err := w.emitTag(TagRefObject); err != nil {
			return err
		}
		if err := encodeTypeDescriptor(w, rec.Type); err != nil {
			return err
		}
		for _, f := range rec.Fields {
			if err := w.encodeFieldOrUndef(f); err != nil {
				return err
			}
		}
		return nil
	}
	if err := w.emitTag(TagObject); err != nil {
		return err
	}
	if err := encodeTypeDescriptor(w, rec.Type); err != nil {
		return err
	}
	for _, f := range rec.Fields {
		if err := w.encodeFieldOrUndef(f); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) encodeDictEntries(entries []DictEntry) error {
	if err := w.emitBytes(be32(uint32(len(entries)))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Encode(e.Key); err != nil {
			return err
		}
		if err := w.Encode(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// encodeDict writes a value-hashed dictionary as a REF_OBJECT whose
// type-directed field reader is the count+pairs routine rather than the
// generic per-declared-field reader — the wire format has no dedicated
// DICT tag, only IDDICT for the identity-hashed variant (§4.4, §4.5).
func (w *Writer) encodeDict(d *Dict) error {
	slot, found := w.tryBackrefIdentity(d)
	if found {
		return w.emitBackref(slot)
	}
	if err := w.emitTag(TagRefObject); err != nil {
		return err
	}
	if err := encodeTypeDescriptor(w, d.Type); err != nil {
		return err
	}
	return w.encodeDictEntries(d.Entries)
}

func (w *Writer) encodeIDDict(d *IDDict) error {
	if slot, found := w.tryBackrefIdentity(d); found {
		return w.emitBackref(slot)
	}
	if err := w.emitTag(TagIDDict); err != nil {
		return err
	}
	if err := encodeTypeDescriptor(w, d.Type); err != nil {
		return err
	}
	return w.encodeDictEntries(d.Entries)
}

func (w *Writer) encodeMethodTopLevel(m *MethodDescriptor) error {
	slot, found := w.tryBackrefIdentity(m)
	if found {
		return w.emitBackref(slot)
	}
	if err := w.emitTag(TagMethod); err != nil {
		return err
	}
	return encodeMethodDescriptor(w, m)
}

// encodeMethodDescriptor writes the stable-number-prefixed body used both
// for top-level method values and for methods attached to a
// TypeNameRecord's anonymous-callable-type payload.
func encodeMethodDescriptor(w *Writer, m *MethodDescriptor) error {
	if m.Opaque {
		return &UnsupportedValueError{Kind: "MethodDescriptor", Reason: "method has an external dispatch table and cannot be serialized"}
	}
	number, isNew := w.Known.NumberFor(m)
	if err := writeVarUint(w.w, number); err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	if err := encodeModule(w, m.Module); err != nil {
		return err
	}
	if err := encodeSymbolText(w, m.Name); err != nil {
		return err
	}
	if err := w.encodeString(m.File); err != nil {
		return err
	}
	if err := writeVarInt(w.w, int64(m.Line)); err != nil {
		return err
	}
	if err := w.encodeString(m.Signature); err != nil {
		return err
	}
	if err := writeVarUint(w.w, uint64(len(m.SlotNames))); err != nil {
		return err
	}
	for _, s := range m.SlotNames {
		if err := encodeSymbolText(w, s); err != nil {
			return err
		}
	}
	if err := writeVarInt(w.w, int64(m.ArgCount)); err != nil {
		return err
	}
	if err := w.emitBool(m.VarArgs); err != nil {
		return err
	}
	if w.version() >= versionInferenceInfo {
		if err := w.emitBool(m.Inference != nil); err != nil {
			return err
		}
		if m.Inference != nil {
			if err := writeVarInt(w.w, int64(m.Inference.InferenceLimit)); err != nil {
				return err
			}
			if err := writeVarInt(w.w, int64(m.Inference.InlineCost)); err != nil {
				return err
			}
			if err := w.emitBool(m.Inference.Pure); err != nil {
				return err
			}
		}
	}
	if err := w.encodeOptionalString(m.Body); err != nil {
		return err
	}
	if err := w.emitBool(m.Generator != nil); err != nil {
		return err
	}
	if m.Generator != nil {
		if err := encodeMethodDescriptor(w, m.Generator); err != nil {
			return err
		}
	}
	return w.encodeOptionalString(m.RecursionRelation)
}

func (w *Writer) encodeOptionalString(s *string) error {
	if s == nil {
		return w.emitTag(TagUndefRef)
	}
	return w.encodeString(*s)
}

func (w *Writer) emitBool(b bool) error {
	if b {
		return w.emitByte(1)
	}
	return w.emitByte(0)
}

// version reports the writer's own protocol version; writers always
// write at the current version.
func (w *Writer) version() byte { return Version }

func (w *Writer) encodeTaskRecord(t *TaskRecord) error {
	if t.State == taskRunning {
		return &UnsupportedValueError{Kind: "TaskRecord", Reason: "a running task cannot be serialized"}
	}
	if err := w.emitTag(TagTask); err != nil {
		return err
	}
	if err := w.encodeFieldOrUndef(t.Body); err != nil {
		return err
	}
	if t.Locals != nil {
		if err := w.Encode(t.Locals); err != nil {
			return err
		}
	} else if err := w.emitTag(TagUndefRef); err != nil {
		return err
	}
	if err := encodeSymbolText(w, t.State.String()); err != nil {
		return err
	}
	if err := w.encodeFieldOrUndef(t.Result); err != nil {
		return err
	}
	if err := w.encodeFieldOrUndef(t.Exception); err != nil {
		return err
	}
	return w.emitBool(t.HasException)
}

func (w *Writer) encodeGlobalRef(g *GlobalRef) error {
	if g.Full {
		if err := w.emitTag(TagFullGlobalRef); err != nil {
			return err
		}
		return encodeTypeDescriptor(w, g.Type)
	}
	if err := w.emitTag(TagGlobalRef); err != nil {
		return err
	}
	if err := encodeModule(w, g.Module); err != nil {
		return err
	}
	return encodeSymbolText(w, g.Name)
}
