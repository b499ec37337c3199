package wire

import "math"

// Decode is the single entry point for the value decoder (§4.5): it
// reads one tag and dispatches to the matching decoder, returning a
// fully reconstructed value with cycles closed.
func (r *Reader) Decode() (any, error) {
	tag, err := r.readTag()
	if err != nil {
		return nil, err
	}
	return r.decodeFromTag(tag)
}

func (r *Reader) decodeFromTag(tag Tag) (any, error) {
	switch {
	case tag == LitEmptyTuple:
		return &Tuple{}, nil
	case tag == LitTrue:
		return true, nil
	case tag == LitFalse:
		return false, nil
	case tag == LitAbsent:
		return AbsentValue, nil
	case IsLiteral(tag):
		return r.decodeLiteral(tag)
	case IsType(tag):
		return r.decodeTypeTagValue(tag)
	default:
		return r.decodeControlTagValue(tag)
	}
}

func (r *Reader) decodeLiteral(tag Tag) (any, error) {
	if text, ok := InternedSymbolText(tag); ok {
		return &Symbol{Name: text}, nil
	}
	if v, ok := LitInt32Value(tag); ok {
		return v, nil
	}
	if v, ok := LitInt64Value(tag); ok {
		return v, nil
	}
	return nil, &DesyncError{Reason: "unassigned literal tag", Tag: tag}
}

func (r *Reader) decodeTypeTagValue(tag Tag) (any, error) {
	switch tag {
	case TagInt8:
		b, err := r.readByte()
		return int8(b), err
	case TagInt16:
		b, err := r.readBytes(2)
		if err != nil {
			return nil, err
		}
		return int16(readBE16(b)), nil
	case TagInt32:
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return int32(readBE32(b)), nil
	case TagInt64:
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}
		return int64(readBE64(b)), nil
	case TagInt128:
		b, err := r.readBytes(16)
		if err != nil {
			return nil, err
		}
		return Int128{Hi: int64(readBE64(b[:8])), Lo: readBE64(b[8:])}, nil
	case TagUInt8:
		b, err := r.readByte()
		return uint8(b), err
	case TagUInt16:
		b, err := r.readBytes(2)
		if err != nil {
			return nil, err
		}
		return readBE16(b), nil
	case TagUInt32:
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return readBE32(b), nil
	case TagUInt64:
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}
		return readBE64(b), nil
	case TagUInt128:
		b, err := r.readBytes(16)
		if err != nil {
			return nil, err
		}
		return UInt128{Hi: readBE64(b[:8]), Lo: readBE64(b[8:])}, nil
	case TagFloat16:
		b, err := r.readBytes(2)
		if err != nil {
			return nil, err
		}
		return Float16(readBE16(b)), nil
	case TagFloat32:
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(readBE32(b)), nil
	case TagFloat64:
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(readBE64(b)), nil
	case TagChar:
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return Char(readBE32(b)), nil
	case TagString:
		return decodeStringBodyFromTag(r, tag)
	case TagSymbol:
		return r.decodeSymbolFromTag(tag)
	case TagTuple:
		return r.decodeTupleBody(false)
	case TagSimpleVector:
		return r.decodeSimpleVectorBody()
	case TagArray:
		return r.decodeArrayBody()
	case TagModule:
		return decodeModuleBody(r)
	case TagTask:
		return r.decodeTaskRecordBody()
	case TagMethod, TagMethodInstance:
		return r.decodeMethodTopLevelBody()
	case TagGlobalRef:
		return r.decodeGlobalRefBody()
	case TagDataType:
		return decodeTypeDescriptorFromTag(r, tag)
	case TagExpr:
		return nil, &UnsupportedValueError{Kind: "Expr", Reason: "quoted-expression values are not modeled by this codec"}
	default:
		return nil, &DesyncError{Reason: "unhandled type tag", Tag: tag}
	}
}

func (r *Reader) decodeControlTagValue(tag Tag) (any, error) {
	switch tag {
	case TagUndefRef:
		return Undef{}, nil
	case TagShortBackref, TagBackref, TagLongBackref:
		slot, err := r.readBackrefSlot(tag)
		if err != nil {
			return nil, err
		}
		return r.resolveBackref(slot)
	case TagLongTuple:
		return r.decodeTupleBody(true)
	case TagLongSymbol:
		return r.decodeSymbolFromTag(tag)
	case TagLongExpr:
		return nil, &UnsupportedValueError{Kind: "Expr", Reason: "quoted-expression values are not modeled by this codec"}
	case TagLongString:
		return decodeStringBodyFromTag(r, tag)
	case TagShortInt64:
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(readBE32(b))), nil
	case TagFullDataType, TagWrapperDataType:
		return decodeTypeDescriptorFromTag(r, tag)
	case TagObject:
		return r.decodeObjectBody(false)
	case TagRefObject:
		return r.decodeObjectBody(true)
	case TagFullGlobalRef:
		td, err := decodeTypeDescriptor(r)
		if err != nil {
			return nil, err
		}
		return &GlobalRef{Full: true, Type: td}, nil
	case TagIDDict:
		return r.decodeIDDictBody()
	case TagSharedRef:
		slot := r.reserveSlot()
		r.pushPending(pendingSlot{slot: slot})
		v, err := r.Decode()
		if err != nil {
			return nil, err
		}
		r.bindSlot(slot, v)
		r.popPending()
		return v, nil
	case TagHeader:
		return nil, &DesyncError{Reason: "unexpected header mid-stream", Tag: tag}
	default:
		return nil, &DesyncError{Reason: "unassigned control tag", Tag: tag}
	}
}

// decodeFieldOrUndef decodes a record/array field, mapping UNDEFREF to
// Undef{}.
func (r *Reader) decodeFieldOrUndef() (any, error) {
	return r.Decode()
}

func decodeStringBodyFromTag(r *Reader, tag Tag) (string, error) {
	var n int
	if tag == TagLongString {
		b, err := r.readBytes(4)
		if err != nil {
			return "", err
		}
		n = int(readBE32(b))
	} else {
		b, err := r.readByte()
		if err != nil {
			return "", err
		}
		n = int(b)
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) decodeSymbolFromTag(tag Tag) (*Symbol, error) {
	var n int
	if tag == TagLongSymbol {
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		n = int(readBE32(b))
	} else {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	}
	b, err := r.readBytes(n)
	if err != nil {
		return nil, err
	}
	name := string(b)
	sym := &Symbol{Name: name}
	if n > 7 {
		slot := r.reserveSlot()
		r.bindSlot(slot, sym)
	}
	return sym, nil
}

// decodeSymbolText and decodeSymbolTextFromTag are the plain-string
// counterparts used by module path segments, type/field names, and
// global-ref names, which carry symbols as Go strings rather than
// *Symbol values.
func decodeSymbolText(r *Reader) (string, error) {
	tag, err := r.readTag()
	if err != nil {
		return "", err
	}
	return decodeSymbolTextFromTag(r, tag)
}

func decodeSymbolTextFromTag(r *Reader, tag Tag) (string, error) {
	if text, ok := InternedSymbolText(tag); ok {
		return text, nil
	}
	switch tag {
	case TagSymbol, TagLongSymbol:
		sym, err := r.decodeSymbolFromTag(tag)
		if err != nil {
			return "", err
		}
		return sym.Name, nil
	case TagShortBackref, TagBackref, TagLongBackref:
		slot, err := r.readBackrefSlot(tag)
		if err != nil {
			return "", err
		}
		v, err := r.resolveBackref(slot)
		if err != nil {
			return "", err
		}
		sym, ok := v.(*Symbol)
		if !ok {
			return "", &DesyncError{Reason: "backref did not resolve to a symbol", Tag: tag, Slot: slot}
		}
		return sym.Name, nil
	default:
		return "", &DesyncError{Reason: "expected symbol tag", Tag: tag}
	}
}

func (r *Reader) decodeTupleBody(long bool) (*Tuple, error) {
	slot := r.reserveSlot()
	t := &Tuple{}
	r.bindSlot(slot, t)
	var n int
	if long {
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		n = int(readBE32(b))
	} else {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	}
	t.Elems = make([]any, n)
	for i := range t.Elems {
		v, err := r.Decode()
		if err != nil {
			return nil, err
		}
		t.Elems[i] = v
	}
	return t, nil
}

func (r *Reader) decodeSimpleVectorBody() (*SimpleVector, error) {
	slot := r.reserveSlot()
	v := &SimpleVector{}
	r.bindSlot(slot, v)
	b, err := r.readBytes(4)
	if err != nil {
		return nil, err
	}
	n := int(readBE32(b))
	v.Elems = make([]any, n)
	for i := range v.Elems {
		v.Elems[i], err = r.Decode()
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (r *Reader) decodeArrayBody() (*Array, error) {
	slot := r.reserveSlot()
	a := &Array{}
	r.bindSlot(slot, a)

	kindByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	a.ElemKind = ArrayElemKind(kindByte)
	if a.ElemKind != ArrayElemBytes {
		a.ElemType, err = decodeTypeDescriptor(r)
		if err != nil {
			return nil, err
		}
	}
	a.Shape, err = r.decodeShape()
	if err != nil {
		return nil, err
	}
	count := 1
	for _, d := range a.Shape {
		count *= d
	}
	switch a.ElemKind {
	case ArrayElemBytes:
		a.Bytes, err = r.readBytes(count)
		return a, err
	case ArrayElemBool:
		a.Bools, err = r.decodeBoolRuns(count)
		return a, err
	case ArrayElemPointer:
		a.Elems = make([]any, count)
		for i := range a.Elems {
			a.Elems[i], err = r.decodeFieldOrUndef()
			if err != nil {
				return nil, err
			}
		}
		return a, nil
	default:
		return nil, &UnsupportedValueError{Kind: "Array", Reason: "unknown element kind byte"}
	}
}

// decodeShape mirrors encodeShape: a leading raw byte dimension count
// followed by that many varint-encoded dimensions.
func (r *Reader) decodeShape() ([]int, error) {
	ndim, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if ndim == 0 {
		return nil, &DesyncError{Reason: "array shape with zero dimensions"}
	}
	shape := make([]int, ndim)
	for i := range shape {
		v, err := readVarInt(r.r)
		if err != nil {
			return nil, err
		}
		shape[i] = int(v)
	}
	return shape, nil
}

func (r *Reader) decodeBoolRuns(count int) ([]bool, error) {
	out := make([]bool, 0, count)
	for len(out) < count {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		v := b&(1<<7) != 0
		run := int(b &^ (1 << 7))
		for i := 0; i < run; i++ {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *Reader) decodeObjectBody(mutable bool) (any, error) {
	var slot uint64
	if mutable {
		slot = r.reserveSlot()
	}
	td, err := decodeTypeDescriptor(r)
	if err != nil {
		return nil, err
	}
	if r.Oracle == nil {
		return nil, &UnsupportedValueError{Kind: "Object", Reason: "no TypeOracle bound to reader"}
	}
	if mutable && r.Oracle.IsDictType(td) {
		return r.decodeDictEntriesInto(td, slot)
	}
	obj, err := r.Oracle.AllocateInstance(td)
	if err != nil {
		return nil, err
	}
	if mutable {
		r.bindSlot(slot, obj)
	}
	n, err := r.Oracle.FieldCount(td)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		tag, err := r.readTag()
		if err != nil {
			return nil, err
		}
		if tag == TagUndefRef {
			continue
		}
		v, err := r.decodeFromTag(tag)
		if err != nil {
			return nil, err
		}
		if err := r.Oracle.InstallField(obj, i, v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (r *Reader) decodeDictEntriesInto(td *TypeDescriptor, slot uint64) (any, error) {
	obj, err := r.Oracle.AllocateInstance(td)
	if err != nil {
		return nil, err
	}
	r.bindSlot(slot, obj)
	b, err := r.readBytes(4)
	if err != nil {
		return nil, err
	}
	n := int(readBE32(b))
	for i := 0; i < n; i++ {
		k, err := r.Decode()
		if err != nil {
			return nil, err
		}
		v, err := r.Decode()
		if err != nil {
			return nil, err
		}
		if err := r.Oracle.InstallDictEntry(obj, k, v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (r *Reader) decodeIDDictBody() (any, error) {
	slot := r.reserveSlot()
	td, err := decodeTypeDescriptor(r)
	if err != nil {
		return nil, err
	}
	if r.Oracle == nil {
		return nil, &UnsupportedValueError{Kind: "IDDict", Reason: "no TypeOracle bound to reader"}
	}
	return r.decodeDictEntriesInto(td, slot)
}

func decodeModuleBody(r *Reader) (*Module, error) {
	hasUUID, err := r.readByte()
	if err != nil {
		return nil, err
	}
	m := &Module{}
	if hasUUID != 0 {
		b, err := r.readBytes(16)
		if err != nil {
			return nil, err
		}
		id, err := uuidFromBytes(b)
		if err != nil {
			return nil, err
		}
		m.RootUUID = &id
	}
	m.RootName, err = decodeSymbolText(r)
	if err != nil {
		return nil, err
	}
	for {
		t, err := r.readTag()
		if err != nil {
			return nil, err
		}
		if t == LitEmptyTuple {
			return m, nil
		}
		seg, err := decodeSymbolTextFromTag(r, t)
		if err != nil {
			return nil, err
		}
		m.Path = append(m.Path, seg)
	}
}

func (r *Reader) decodeTaskRecordBody() (*TaskRecord, error) {
	t := &TaskRecord{}
	var err error
	t.Body, err = r.decodeFieldOrUndef()
	if err != nil {
		return nil, err
	}
	localsTag, err := r.readTag()
	if err != nil {
		return nil, err
	}
	if localsTag != TagUndefRef {
		v, err := r.decodeFromTag(localsTag)
		if err != nil {
			return nil, err
		}
		if d, ok := v.(*Dict); ok {
			t.Locals = d
		}
	}
	stateText, err := decodeSymbolText(r)
	if err != nil {
		return nil, err
	}
	switch stateText {
	case "runnable":
		t.State = TaskRunnable
	case "done":
		t.State = TaskDone
	case "failed":
		t.State = TaskFailed
	default:
		return nil, &DesyncError{Reason: "unknown task state " + stateText}
	}
	t.Result, err = r.decodeFieldOrUndef()
	if err != nil {
		return nil, err
	}
	t.Exception, err = r.decodeFieldOrUndef()
	if err != nil {
		return nil, err
	}
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	t.HasException = b != 0
	return t, nil
}

func (r *Reader) decodeMethodTopLevelBody() (*MethodDescriptor, error) {
	slot := r.reserveSlot()
	m, err := decodeMethodDescriptor(r)
	if err != nil {
		return nil, err
	}
	r.bindSlot(slot, m)
	return m, nil
}

func decodeMethodDescriptor(r *Reader) (*MethodDescriptor, error) {
	number, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	if cached, ok := r.Known.Lookup(number, r.Oracle); ok {
		if m, ok := cached.(*MethodDescriptor); ok {
			return m, nil
		}
	}
	m := &MethodDescriptor{ObjectNumber: number}
	r.Known.Store(number, m)

	m.Module, err = decodeModule(r)
	if err != nil {
		return nil, err
	}
	m.Name, err = decodeSymbolText(r)
	if err != nil {
		return nil, err
	}
	m.File, err = decodeStringValue(r)
	if err != nil {
		return nil, err
	}
	line, err := readVarInt(r.r)
	if err != nil {
		return nil, err
	}
	m.Line = int(line)
	m.Signature, err = decodeStringValue(r)
	if err != nil {
		return nil, err
	}
	nSlots, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	m.SlotNames = make([]string, nSlots)
	for i := range m.SlotNames {
		m.SlotNames[i], err = decodeSymbolText(r)
		if err != nil {
			return nil, err
		}
	}
	argCount, err := readVarInt(r.r)
	if err != nil {
		return nil, err
	}
	m.ArgCount = int(argCount)
	vb, err := r.readByte()
	if err != nil {
		return nil, err
	}
	m.VarArgs = vb != 0
	if r.version >= versionInferenceInfo {
		hb, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if hb != 0 {
			m.Inference = &MethodInferenceInfo{}
			lim, err := readVarInt(r.r)
			if err != nil {
				return nil, err
			}
			m.Inference.InferenceLimit = int(lim)
			cost, err := readVarInt(r.r)
			if err != nil {
				return nil, err
			}
			m.Inference.InlineCost = int(cost)
			pb, err := r.readByte()
			if err != nil {
				return nil, err
			}
			m.Inference.Pure = pb != 0
		}
	}
	m.Body, err = decodeOptionalString(r)
	if err != nil {
		return nil, err
	}
	hasGen, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if hasGen != 0 {
		m.Generator, err = decodeMethodDescriptor(r)
		if err != nil {
			return nil, err
		}
	}
	m.RecursionRelation, err = decodeOptionalString(r)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// decodeStringValue and decodeOptionalString unwrap the general Decode
// result into the plain string type.String method/field values use.
func decodeStringValue(r *Reader) (string, error) {
	v, err := r.Decode()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &DesyncError{Reason: "expected string value"}
	}
	return s, nil
}

func decodeOptionalString(r *Reader) (*string, error) {
	tag, err := r.readTag()
	if err != nil {
		return nil, err
	}
	if tag == TagUndefRef {
		return nil, nil
	}
	v, err := r.decodeFromTag(tag)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, &DesyncError{Reason: "expected string value", Tag: tag}
	}
	return &s, nil
}

func (r *Reader) decodeGlobalRefBody() (*GlobalRef, error) {
	mod, err := decodeModule(r)
	if err != nil {
		return nil, err
	}
	name, err := decodeSymbolText(r)
	if err != nil {
		return nil, err
	}
	return &GlobalRef{Module: mod, Name: name}, nil
}
