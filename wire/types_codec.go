package wire

// Type-descriptor subprotocol (§4.6): encodes named types and their
// originating modules; on read, resolves or synthesizes a type into a
// sandboxed namespace via the TypeOracle.

// builtinTypeNames maps every interned type tag to the canonical name a
// TypeDescriptor carries for it. A TypeDescriptor naming one of these
// with no parameters is written as that single tag byte instead of a
// DATATYPE record (§4.4's "interned singleton" rule, scenario 5).
//
// The seven type tags that double as structural operators elsewhere
// (DATATYPE, TYPENAME, MODULE, TASK, METHOD, METHODINSTANCE, GLOBALREF)
// are deliberately excluded: within a "type descriptor expected" context
// those bytes always mean the structural form, never the type used as a
// first-class value. Serializing one of those seven types as a bare
// value is not supported by this implementation.
var builtinTypeNames = map[Tag]string{
	TagInt8: "Int8", TagInt16: "Int16", TagInt32: "Int32", TagInt64: "Int64",
	TagInt128: "Int128", TagUInt8: "UInt8", TagUInt16: "UInt16", TagUInt32: "UInt32",
	TagUInt64: "UInt64", TagUInt128: "UInt128", TagFloat16: "Float16", TagFloat32: "Float32",
	TagFloat64: "Float64", TagChar: "Char", TagString: "String", TagSymbol: "Symbol",
	TagTuple: "Tuple", TagSimpleVector: "SimpleVector", TagArray: "Array", TagExpr: "Expr",
}

var builtinTypeTagsByName map[string]Tag

func init() {
	builtinTypeTagsByName = make(map[string]Tag, len(builtinTypeNames))
	for t, n := range builtinTypeNames {
		builtinTypeTagsByName[n] = t
	}
}

func encodeTypeDescriptor(w *Writer, td *TypeDescriptor) error {
	if td == nil {
		return &UnsupportedValueError{Kind: "TypeDescriptor", Reason: "nil type descriptor"}
	}
	if td.Kind == DataType && len(td.Params) == 0 {
		if t, ok := builtinTypeTagsByName[td.Name]; ok {
			return w.emitTagAsValue(t)
		}
	}
	switch td.Kind {
	case DataType:
		if err := w.emitTag(TagDataType); err != nil {
			return err
		}
		if err := encodeModule(w, td.Module); err != nil {
			return err
		}
		if err := encodeSymbolText(w, td.Name); err != nil {
			return err
		}
		if err := writeBE32(w, uint32(len(td.Params))); err != nil {
			return err
		}
		for _, p := range td.Params {
			if err := encodeTypeDescriptor(w, p); err != nil {
				return err
			}
		}
		return nil

	case FullDataType:
		if err := w.emitTag(TagFullDataType); err != nil {
			return err
		}
		return encodeTypeNameRecord(w, td.TypeName)

	case WrapperDataType:
		if err := w.emitTag(TagWrapperDataType); err != nil {
			return err
		}
		if err := encodeModule(w, td.Module); err != nil {
			return err
		}
		return encodeSymbolText(w, td.Name)

	default:
		return &UnsupportedValueError{Kind: "TypeDescriptor", Reason: "unknown kind"}
	}
}

// encodeTypeNameRecord writes the stable object number, then — only the
// first time this record is seen by w's known-object table — its full
// body. Later encounters (this stream or, if w.Known is shared, an
// earlier stream) write only the number; the reader is expected to
// already hold a cached synthesis for it.
func encodeTypeNameRecord(w *Writer, rec *TypeNameRecord) error {
	if rec == nil {
		return &UnsupportedValueError{Kind: "TypeNameRecord", Reason: "nil record"}
	}
	number, isNew := w.Known.NumberFor(rec)
	if err := writeVarUint(w.w, number); err != nil {
		return err
	}
	if !isNew {
		return nil
	}
	if err := encodeSymbolText(w, rec.Name); err != nil {
		return err
	}
	if err := writeVarUint(w.w, uint64(len(rec.FieldNames))); err != nil {
		return err
	}
	for _, f := range rec.FieldNames {
		if err := encodeSymbolText(w, f); err != nil {
			return err
		}
	}
	if rec.Super != nil {
		if err := w.emitByte(1); err != nil {
			return err
		}
		if err := encodeTypeDescriptor(w, rec.Super); err != nil {
			return err
		}
	} else if err := w.emitByte(0); err != nil {
		return err
	}
	if err := writeVarUint(w.w, uint64(len(rec.Params))); err != nil {
		return err
	}
	for _, p := range rec.Params {
		if err := encodeSymbolText(w, p); err != nil {
			return err
		}
	}
	if err := writeVarUint(w.w, uint64(len(rec.FieldTypes))); err != nil {
		return err
	}
	for _, ft := range rec.FieldTypes {
		if err := encodeTypeDescriptor(w, ft); err != nil {
			return err
		}
	}
	flags := byte(0)
	if rec.HasSingleton {
		flags |= 1 << 0
	}
	if rec.Abstract {
		flags |= 1 << 1
	}
	if rec.MutableType {
		flags |= 1 << 2
	}
	if err := w.emitByte(flags); err != nil {
		return err
	}
	if err := writeVarInt(w.w, int64(rec.NumInitFields)); err != nil {
		return err
	}
	if err := writeVarInt(w.w, int64(rec.MaxDispatchArity)); err != nil {
		return err
	}
	if err := writeVarUint(w.w, uint64(len(rec.Methods))); err != nil {
		return err
	}
	for _, m := range rec.Methods {
		if err := encodeMethodDescriptor(w, m); err != nil {
			return err
		}
	}
	return nil
}

func decodeTypeDescriptor(r *Reader) (*TypeDescriptor, error) {
	tag, err := r.readTagAsValue()
	if err != nil {
		return nil, err
	}
	return decodeTypeDescriptorFromTag(r, tag)
}

func decodeTypeDescriptorFromTag(r *Reader, tag Tag) (*TypeDescriptor, error) {
	if name, ok := builtinTypeNames[tag]; ok {
		return &TypeDescriptor{Kind: DataType, Name: name}, nil
	}
	switch tag {
	case TagDataType:
		mod, err := decodeModule(r)
		if err != nil {
			return nil, err
		}
		name, err := decodeSymbolText(r)
		if err != nil {
			return nil, err
		}
		n, err := readBE32Reader(r)
		if err != nil {
			return nil, err
		}
		params := make([]*TypeDescriptor, n)
		for i := range params {
			params[i], err = decodeTypeDescriptor(r)
			if err != nil {
				return nil, err
			}
		}
		return &TypeDescriptor{Kind: DataType, Module: mod, Name: name, Params: params}, nil

	case TagFullDataType:
		rec, err := decodeTypeNameRecord(r)
		if err != nil {
			return nil, err
		}
		if r.Oracle == nil {
			return nil, &UnsupportedValueError{Kind: "FullDataType", Reason: "no TypeOracle bound to reader"}
		}
		return r.Oracle.SynthesizeType(rec)

	case TagWrapperDataType:
		mod, err := decodeModule(r)
		if err != nil {
			return nil, err
		}
		name, err := decodeSymbolText(r)
		if err != nil {
			return nil, err
		}
		return &TypeDescriptor{Kind: WrapperDataType, Module: mod, Name: name}, nil

	default:
		return nil, &DesyncError{Reason: "expected type descriptor tag", Tag: tag}
	}
}

func decodeTypeNameRecord(r *Reader) (*TypeNameRecord, error) {
	number, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	if cached, ok := r.Known.Lookup(number, r.Oracle); ok {
		if rec, ok := cached.(*TypeNameRecord); ok {
			if rec.constructing {
				return nil, &CycleConstructionError{TypeName: rec.Name}
			}
			return rec, nil
		}
	}
	rec := &TypeNameRecord{ObjectNumber: number, constructing: true}
	r.Known.Store(number, rec)

	rec.Name, err = decodeSymbolText(r)
	if err != nil {
		return nil, err
	}
	nFields, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	rec.FieldNames = make([]string, nFields)
	for i := range rec.FieldNames {
		rec.FieldNames[i], err = decodeSymbolText(r)
		if err != nil {
			return nil, err
		}
	}
	hasSuper, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if hasSuper != 0 {
		rec.Super, err = decodeTypeDescriptor(r)
		if err != nil {
			return nil, err
		}
	}
	nParams, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	rec.Params = make([]string, nParams)
	for i := range rec.Params {
		rec.Params[i], err = decodeSymbolText(r)
		if err != nil {
			return nil, err
		}
	}
	nFieldTypes, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	rec.FieldTypes = make([]*TypeDescriptor, nFieldTypes)
	for i := range rec.FieldTypes {
		rec.FieldTypes[i], err = decodeTypeDescriptor(r)
		if err != nil {
			return nil, err
		}
	}
	flags, err := r.readByte()
	if err != nil {
		return nil, err
	}
	rec.HasSingleton = flags&(1<<0) != 0
	rec.Abstract = flags&(1<<1) != 0
	rec.MutableType = flags&(1<<2) != 0

	n64, err := readVarInt(r.r)
	if err != nil {
		return nil, err
	}
	rec.NumInitFields = int(n64)
	n64, err = readVarInt(r.r)
	if err != nil {
		return nil, err
	}
	rec.MaxDispatchArity = int(n64)

	nMethods, err := readVarUint(r.r)
	if err != nil {
		return nil, err
	}
	rec.Methods = make([]*MethodDescriptor, nMethods)
	for i := range rec.Methods {
		rec.Methods[i], err = decodeMethodDescriptor(r)
		if err != nil {
			return nil, err
		}
	}
	rec.constructing = false
	return rec, nil
}

func encodeModule(w *Writer, m *Module) error {
	if err := w.emitTag(TagModule); err != nil {
		return err
	}
	if m.RootUUID != nil {
		if err := w.emitByte(1); err != nil {
			return err
		}
		b, _ := m.RootUUID.MarshalBinary()
		if err := w.emitBytes(b); err != nil {
			return err
		}
	} else if err := w.emitByte(0); err != nil {
		return err
	}
	if err := encodeSymbolText(w, m.RootName); err != nil {
		return err
	}
	for _, seg := range m.Path {
		if err := encodeSymbolText(w, seg); err != nil {
			return err
		}
	}
	return w.emitTag(LitEmptyTuple)
}

// decodeModule reads the leading MODULE tag itself, then delegates to
// decodeModuleBody (used directly by the top-level decoder, which has
// already consumed that tag as part of its own dispatch).
func decodeModule(r *Reader) (*Module, error) {
	tag, err := r.readTag()
	if err != nil {
		return nil, err
	}
	if tag != TagModule {
		return nil, &DesyncError{Reason: "expected MODULE tag", Tag: tag}
	}
	return decodeModuleBody(r)
}

func writeBE32(w *Writer, v uint32) error { return w.emitBytes(be32(v)) }

func readBE32Reader(r *Reader) (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return readBE32(b), nil
}
