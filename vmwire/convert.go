package vmwire

import (
	"fmt"
	"math"

	"github.com/chazu/magwire/vm"
	"github.com/chazu/magwire/wire"
)

// ToHostValue converts a decoded wire value (anything the wire decoder
// can hand back: a Go primitive, Undef, or one of the domain pointer
// types in wire/domain.go) into a live vm.Value. Values that already
// arrived as a vm.Value — the common case for fields decoded through
// Oracle.AllocateInstance/InstallField, which round-trip through this
// same function on the way in — pass through unchanged.
func (o *Oracle) ToHostValue(x any) (vm.Value, error) {
	switch v := x.(type) {
	case vm.Value:
		return v, nil
	case nil:
		return vm.Nil, nil
	case wire.Undef:
		return vm.Nil, nil
	case bool:
		return vm.FromBool(v), nil
	case int8:
		return vm.FromSmallInt(int64(v)), nil
	case int16:
		return vm.FromSmallInt(int64(v)), nil
	case int32:
		return vm.FromSmallInt(int64(v)), nil
	case int64:
		return smallIntOrFloat(v), nil
	case int:
		return smallIntOrFloat(int64(v)), nil
	case uint8:
		return vm.FromSmallInt(int64(v)), nil
	case uint16:
		return vm.FromSmallInt(int64(v)), nil
	case uint32:
		return smallIntOrFloat(int64(v)), nil
	case uint64:
		if v <= 1<<62 {
			return smallIntOrFloat(int64(v)), nil
		}
		return vm.FromFloat64(float64(v)), nil
	case wire.Int128:
		return vm.FromFloat64(int128ToFloat(v)), nil
	case wire.UInt128:
		return vm.FromFloat64(uint128ToFloat(v)), nil
	case float32:
		return vm.FromFloat64(float64(v)), nil
	case float64:
		return vm.FromFloat64(v), nil
	case wire.Float16:
		return vm.FromFloat64(float16ToFloat64(v)), nil
	case wire.Char:
		return vm.FromCharacter(rune(v)), nil
	case string:
		return vm.NewStringValue(v), nil
	case *wire.Symbol:
		return o.vm.Symbols.SymbolValue(v.Name), nil
	case *wire.Array:
		return o.hydrateArray(v)
	case *wire.Tuple:
		return o.hydrateSequence(v.Elems)
	case *wire.SimpleVector:
		return o.hydrateSequence(v.Elems)
	case *wire.Dict:
		return o.hydrateDict(v.Entries, false)
	case *wire.IDDict:
		return o.hydrateDict(v.Entries, true)
	case *wire.Record:
		return o.hydrateRecord(v)
	case *wire.TaskRecord:
		return o.hydrateTask(v)
	default:
		return vm.Value(0), fmt.Errorf("vmwire: no host conversion for decoded %T", x)
	}
}

func smallIntOrFloat(n int64) vm.Value {
	if hv, ok := vm.TryFromSmallInt(n); ok {
		return hv
	}
	return vm.FromFloat64(float64(n))
}

func int128ToFloat(v wire.Int128) float64 {
	return float64(v.Hi)*18446744073709551616.0 + float64(v.Lo)
}

func uint128ToFloat(v wire.UInt128) float64 {
	return float64(v.Hi)*18446744073709551616.0 + float64(v.Lo)
}

// float16ToFloat64 widens an IEEE-754 half-precision bit pattern. The
// wire codec only ever moves Float16 bits; no host type in this VM is
// itself half-precision, so every consumer widens to float64.
func float16ToFloat64(f wire.Float16) float64 {
	bits := uint16(f)
	sign := uint64(bits>>15) & 1
	exp := uint64(bits>>10) & 0x1f
	frac := uint64(bits) & 0x3ff

	var out uint64
	switch exp {
	case 0:
		if frac == 0 {
			out = sign << 63
		} else {
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			exp++
			frac &= 0x3ff
			out = sign<<63 | (exp+1023-15)<<52 | frac<<42
		}
	case 0x1f:
		out = sign<<63 | 0x7ff<<52 | frac<<42
	default:
		out = sign<<63 | (exp+1023-15)<<52 | frac<<42
	}
	return math.Float64frombits(out)
}

// hydrateArray turns a decoded *wire.Array into a live vm.Value using
// Oracle.NewArrayStorage directly, since decode.go never calls it itself
// (see oracle.go's NewArrayStorage doc comment).
func (o *Oracle) hydrateArray(a *wire.Array) (vm.Value, error) {
	storage, err := o.NewArrayStorage(a.ElemType, a.Shape)
	if err != nil {
		return vm.Value(0), err
	}
	av := storage.(vm.Value)
	obj := vm.ObjectFromValue(av)

	switch a.ElemKind {
	case wire.ArrayElemBytes:
		for i, b := range a.Bytes {
			obj.SetSlot(i, vm.FromSmallInt(int64(b)))
		}
	case wire.ArrayElemBool:
		for i, b := range a.Bools {
			obj.SetSlot(i, vm.FromBool(b))
		}
	case wire.ArrayElemPointer:
		for i, e := range a.Elems {
			hv, err := o.ToHostValue(e)
			if err != nil {
				return vm.Value(0), err
			}
			obj.SetSlot(i, hv)
		}
	}
	return av, nil
}

// hydrateSequence maps a Tuple/SimpleVector onto the same flat
// Array-class representation arrays use: the VM has no distinct
// fixed-arity or homogeneous-vector storage, only a dynamically typed
// slot list, so all three wire sequence kinds collapse onto one host
// shape. Round-tripping back out (ValueToWire) cannot recover which of
// the three it originally was; see DESIGN.md.
func (o *Oracle) hydrateSequence(elems []any) (vm.Value, error) {
	slots := make([]vm.Value, len(elems))
	for i, e := range elems {
		hv, err := o.ToHostValue(e)
		if err != nil {
			return vm.Value(0), err
		}
		slots[i] = hv
	}
	return o.vm.ArrayClass.NewInstanceWithSlots(slots).ToValue(), nil
}

func (o *Oracle) hydrateDict(entries []wire.DictEntry, identity bool) (vm.Value, error) {
	var dv vm.Value
	if identity {
		dv = vm.NewIdentityDictionaryValue()
	} else {
		dv = vm.NewDictionaryValue()
	}
	for _, e := range entries {
		hk, err := o.ToHostValue(e.Key)
		if err != nil {
			return vm.Value(0), err
		}
		hval, err := o.ToHostValue(e.Value)
		if err != nil {
			return vm.Value(0), err
		}
		if identity {
			vm.GetIdentityDictionaryObject(dv).Put(hk, hval)
		} else {
			vm.GetDictionaryObject(dv).Put(hk, hval)
		}
	}
	return dv, nil
}

// hydrateRecord allocates and fills a class instance for a decoded
// *wire.Record directly, for callers that receive one outside the
// decoder's own Oracle-mediated object path (e.g. a Record nested inside
// a Tuple/SimpleVector/Array's pointer elements).
func (o *Oracle) hydrateRecord(r *wire.Record) (vm.Value, error) {
	inst, err := o.AllocateInstance(r.Type)
	if err != nil {
		return vm.Value(0), err
	}
	for i, f := range r.Fields {
		if _, ok := f.(wire.Undef); ok {
			continue
		}
		if err := o.InstallField(inst, i, f); err != nil {
			return vm.Value(0), err
		}
	}
	return inst.(vm.Value), nil
}

// hydrateTask converts a decoded, already-terminated *wire.TaskRecord
// into a host Process value that reports the captured outcome. It does
// not resume execution: a TaskRecord on the wire is snapshot data, not a
// schedulable continuation, and this module carries no bytecode
// interpreter entry point that could resume one from Locals/Body alone;
// Body is captured for inspection but not reinstalled as running code.
func (o *Oracle) hydrateTask(t *wire.TaskRecord) (vm.Value, error) {
	var result vm.Value = vm.Nil
	var taskErr error
	if t.State == wire.TaskDone {
		hv, err := o.ToHostValue(t.Result)
		if err != nil {
			return vm.Value(0), err
		}
		result = hv
	} else if t.State == wire.TaskFailed {
		taskErr = fmt.Errorf("vmwire: restored failed task")
	}
	return o.vm.NewTerminatedProcessValue(result, taskErr), nil
}

// ValueToWire converts a live vm.Value into the wire domain model for
// encoding. Primitive and object values are handled directly; the
// caller's wire.Writer is responsible for back-reference bookkeeping, so
// ValueToWire always returns a fresh description rather than consulting
// identity tables itself.
func (o *Oracle) ValueToWire(v vm.Value) (any, error) {
	switch {
	case v == vm.Nil:
		return wire.Undef{}, nil
	case v.IsSmallInt():
		return v.SmallInt(), nil
	case v.IsFloat():
		return v.Float64(), nil
	case v.IsBool():
		return v.Bool(), nil
	case vm.IsStringValue(v):
		return vm.GetStringContent(v), nil
	case vm.IsDictionaryValue(v):
		return o.dictToWire(vm.GetDictionaryObject(v).Entries())
	case vm.IsIdentityDictionaryValue(v):
		return o.idDictToWire(vm.GetIdentityDictionaryObject(v).Entries())
	case vm.IsProcessValue(v):
		return o.processToWire(v)
	case vm.IsCharacterValue(v):
		return wire.Char(vm.GetCharacterCodePoint(v)), nil
	case v.IsSymbol() && vm.IsPlainSymbolValue(v):
		return &wire.Symbol{Name: o.vm.SymbolName(v.SymbolID())}, nil
	case v.IsSymbol():
		// Every other symbol-tagged encoding (channel, mutex, wait group,
		// semaphore, gRPC handle, HTTP object, weak/remote reference, ...)
		// wraps live host state with no wire representation.
		return nil, &wire.UnsupportedValueError{Kind: "host primitive", Reason: "not representable on the wire"}
	case v.IsObject():
		return o.objectToWire(v)
	default:
		return nil, fmt.Errorf("vmwire: no wire conversion for host value")
	}
}

// processToWire captures a terminated process as a *wire.TaskRecord
// snapshot. A still-running process is UNSUPPORTED per the spec's
// TaskRecord invariant (see wire/domain.go's taskRunning state): there
// is no stable result yet to write.
func (o *Oracle) processToWire(v vm.Value) (any, error) {
	snap, ok := o.vm.SnapshotProcess(v)
	if !ok {
		return nil, &wire.UnsupportedValueError{Kind: "process", Reason: "process has not terminated"}
	}
	if snap.Err != nil {
		return &wire.TaskRecord{State: wire.TaskFailed}, nil
	}
	result, err := o.ValueToWire(snap.Result)
	if err != nil {
		return nil, err
	}
	return &wire.TaskRecord{State: wire.TaskDone, Result: result}, nil
}

func (o *Oracle) dictToWire(entries []vm.DictEntry) (*wire.Dict, error) {
	out := make([]wire.DictEntry, len(entries))
	for i, e := range entries {
		k, err := o.ValueToWire(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := o.ValueToWire(e.Value)
		if err != nil {
			return nil, err
		}
		out[i] = wire.DictEntry{Key: k, Value: val}
	}
	return &wire.Dict{Type: &wire.TypeDescriptor{Kind: wire.DataType, Name: "Dictionary"}, Entries: out}, nil
}

func (o *Oracle) idDictToWire(entries []vm.DictEntry) (*wire.IDDict, error) {
	out := make([]wire.DictEntry, len(entries))
	for i, e := range entries {
		k, err := o.ValueToWire(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := o.ValueToWire(e.Value)
		if err != nil {
			return nil, err
		}
		out[i] = wire.DictEntry{Key: k, Value: val}
	}
	return &wire.IDDict{Type: &wire.TypeDescriptor{Kind: wire.DataType, Name: "IdentityDictionary"}, Entries: out}, nil
}

// objectToWire describes a generic object value: an Array-class instance
// becomes a pointer-element *wire.Array, anything else becomes a
// *wire.Record naming its class and its slot values in order.
func (o *Oracle) objectToWire(v vm.Value) (any, error) {
	obj := vm.ObjectFromValue(v)
	if obj == nil {
		return nil, fmt.Errorf("vmwire: IsObject value has no backing Object")
	}
	class := o.vm.ClassFor(v)
	if class == nil {
		return nil, fmt.Errorf("vmwire: no class for object value")
	}

	slots := obj.AllSlots()
	if class == o.vm.ArrayClass {
		elems := make([]any, len(slots))
		for i, s := range slots {
			w, err := o.ValueToWire(s)
			if err != nil {
				return nil, err
			}
			elems[i] = w
		}
		return &wire.Array{
			ElemKind: wire.ArrayElemPointer,
			Shape:    []int{len(elems)},
			Elems:    elems,
		}, nil
	}

	fields := make([]any, len(slots))
	for i, s := range slots {
		w, err := o.ValueToWire(s)
		if err != nil {
			return nil, err
		}
		fields[i] = w
	}
	return &wire.Record{
		Type:    &wire.TypeDescriptor{Kind: wire.DataType, Name: class.Name},
		Fields:  fields,
		Mutable: true,
	}, nil
}
