package vmwire

import (
	"testing"

	"github.com/chazu/magwire/vm"
	"github.com/chazu/magwire/wire"
)

func TestToHostValuePrimitives(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	cases := []struct {
		name string
		in   any
		want func(vm.Value) bool
	}{
		{"bool", true, func(hv vm.Value) bool { return hv.Bool() }},
		{"int64", int64(41), func(hv vm.Value) bool { return hv.SmallInt() == 41 }},
		{"float64", 1.5, func(hv vm.Value) bool { return hv.Float64() == 1.5 }},
		{"string", "hello", func(hv vm.Value) bool { return vm.GetStringContent(hv) == "hello" }},
		{"undef", wire.Undef{}, func(hv vm.Value) bool { return hv == vm.Nil }},
		{"nil", nil, func(hv vm.Value) bool { return hv == vm.Nil }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hv, err := o.ToHostValue(c.in)
			if err != nil {
				t.Fatalf("ToHostValue(%v): %v", c.in, err)
			}
			if !c.want(hv) {
				t.Errorf("ToHostValue(%v) = %v, failed predicate", c.in, hv)
			}
		})
	}
}

func TestToHostValueCharacterRoundTrip(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	hv, err := o.ToHostValue(wire.Char('A'))
	if err != nil {
		t.Fatalf("ToHostValue(Char): %v", err)
	}
	if !vm.IsCharacterValue(hv) {
		t.Fatal("expected a Character value")
	}
	if vm.GetCharacterCodePoint(hv) != 'A' {
		t.Errorf("code point = %v, want %q", vm.GetCharacterCodePoint(hv), 'A')
	}

	w, err := o.ValueToWire(hv)
	if err != nil {
		t.Fatalf("ValueToWire(Character): %v", err)
	}
	if w.(wire.Char) != wire.Char('A') {
		t.Errorf("ValueToWire(Character) = %v, want %q", w, 'A')
	}
}

func TestValueToWireProcess(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	running := v.NewTerminatedProcessValue(vm.FromSmallInt(1), nil)
	if _, err := o.ValueToWire(running); err != nil {
		t.Fatalf("ValueToWire(terminated process): %v", err)
	}
}

func TestToHostValueSymbol(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	hv, err := o.ToHostValue(&wire.Symbol{Name: "foo"})
	if err != nil {
		t.Fatalf("ToHostValue(Symbol): %v", err)
	}
	if !hv.IsSymbol() {
		t.Fatal("expected a symbol value")
	}
	if v.SymbolName(hv.SymbolID()) != "foo" {
		t.Errorf("symbol name = %q, want %q", v.SymbolName(hv.SymbolID()), "foo")
	}
}

func TestHydrateArrayPointerElements(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	a := &wire.Array{
		ElemKind: wire.ArrayElemPointer,
		Shape:    []int{3},
		Elems:    []any{int64(1), int64(2), int64(3)},
	}
	hv, err := o.ToHostValue(a)
	if err != nil {
		t.Fatalf("ToHostValue(Array): %v", err)
	}
	obj := vm.ObjectFromValue(hv)
	if obj.NumSlots() != 3 {
		t.Fatalf("NumSlots = %d, want 3", obj.NumSlots())
	}
	for i := 0; i < 3; i++ {
		if obj.GetSlot(i).SmallInt() != int64(i+1) {
			t.Errorf("slot %d = %v, want %d", i, obj.GetSlot(i), i+1)
		}
	}
}

func TestHydrateArrayBytes(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	a := &wire.Array{
		ElemKind: wire.ArrayElemBytes,
		Shape:    []int{4},
		Bytes:    []byte{1, 2, 3, 4},
	}
	hv, err := o.ToHostValue(a)
	if err != nil {
		t.Fatalf("ToHostValue(Array): %v", err)
	}
	obj := vm.ObjectFromValue(hv)
	for i := 0; i < 4; i++ {
		if obj.GetSlot(i).SmallInt() != int64(i+1) {
			t.Errorf("slot %d = %v, want %d", i, obj.GetSlot(i), i+1)
		}
	}
}

func TestHydrateDictAndIDDict(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	d := &wire.Dict{Entries: []wire.DictEntry{{Key: "a", Value: int64(1)}}}
	hv, err := o.ToHostValue(d)
	if err != nil {
		t.Fatalf("ToHostValue(Dict): %v", err)
	}
	if !vm.IsDictionaryValue(hv) {
		t.Error("expected a value-hashed dictionary value")
	}

	id := &wire.IDDict{Entries: []wire.DictEntry{{Key: "a", Value: int64(1)}}}
	hv2, err := o.ToHostValue(id)
	if err != nil {
		t.Fatalf("ToHostValue(IDDict): %v", err)
	}
	if !vm.IsIdentityDictionaryValue(hv2) {
		t.Error("expected an identity-hashed dictionary value")
	}
}

func TestValueToWireRoundTripsPrimitives(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	w, err := o.ValueToWire(vm.FromSmallInt(7))
	if err != nil {
		t.Fatalf("ValueToWire(int): %v", err)
	}
	if w.(int64) != 7 {
		t.Errorf("ValueToWire(int) = %v, want 7", w)
	}

	w, err = o.ValueToWire(vm.NewStringValue("hi"))
	if err != nil {
		t.Fatalf("ValueToWire(string): %v", err)
	}
	if w.(string) != "hi" {
		t.Errorf("ValueToWire(string) = %v, want %q", w, "hi")
	}

	w, err = o.ValueToWire(vm.Nil)
	if err != nil {
		t.Fatalf("ValueToWire(nil): %v", err)
	}
	if _, ok := w.(wire.Undef); !ok {
		t.Errorf("ValueToWire(Nil) = %v (%T), want wire.Undef", w, w)
	}
}

func TestValueToWireArrayObject(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	arr := v.ArrayClass.NewInstanceWithSlots([]vm.Value{vm.FromSmallInt(1), vm.FromSmallInt(2)}).ToValue()
	w, err := o.ValueToWire(arr)
	if err != nil {
		t.Fatalf("ValueToWire(array): %v", err)
	}
	wa, ok := w.(*wire.Array)
	if !ok {
		t.Fatalf("ValueToWire(array) = %T, want *wire.Array", w)
	}
	if len(wa.Elems) != 2 {
		t.Errorf("len(Elems) = %d, want 2", len(wa.Elems))
	}
}

func TestHydrateTaskRoundTrip(t *testing.T) {
	v := vm.NewVM()
	o := NewOracle(v)

	task := &wire.TaskRecord{State: wire.TaskDone, Result: int64(9)}
	hv, err := o.ToHostValue(task)
	if err != nil {
		t.Fatalf("ToHostValue(TaskRecord): %v", err)
	}

	done := v.Send(hv, "isDone", nil)
	if !done.Bool() {
		t.Fatal("expected the restored task to report done")
	}
	result := v.Send(hv, "result", nil)
	if result.SmallInt() != 9 {
		t.Errorf("result = %v, want 9", result)
	}
}
