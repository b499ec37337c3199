// Package vmwire adapts the host-agnostic wire codec to the NaN-boxed
// object VM in vm/. It implements wire.TypeOracle against a *vm.VM and
// provides the value-conversion functions between vm.Value and the wire
// domain model.
package vmwire

import (
	"fmt"
	"sync"

	"github.com/chazu/magwire/vm"
	"github.com/chazu/magwire/wire"
)

// Oracle implements wire.TypeOracle against a single *vm.VM. It is safe
// for concurrent use by multiple Readers sharing the same VM, but a given
// Oracle should back only one Reader at a time: its per-stream
// synthesized-type cache is keyed by ObjectNumber, which is itself only
// unique within one stream (or one shared wire.KnownObjects session).
type Oracle struct {
	vm *vm.VM

	mu          sync.Mutex
	sandbox     *wire.Module
	synthesized map[uint64]*wire.TypeDescriptor
}

// NewOracle returns an Oracle bound to v.
func NewOracle(v *vm.VM) *Oracle {
	return &Oracle{vm: v, synthesized: make(map[uint64]*wire.TypeDescriptor)}
}

// VM returns the bound *vm.VM, for callers (convert.go, cmd/magwire) that
// need direct access alongside the TypeOracle surface.
func (o *Oracle) VM() *vm.VM { return o.vm }

// ResolveGlobal looks up name in the VM's flat global namespace. The VM
// has no module-scoped global table (vm.VM.Globals is a single
// map[string]Value), so mod is accepted for interface conformance but
// not consulted — every global lives in one namespace regardless of the
// module path a GlobalRef names.
func (o *Oracle) ResolveGlobal(mod *wire.Module, name string) (any, bool) {
	v, ok := o.vm.LookupGlobal(name)
	if !ok {
		return nil, false
	}
	return v, true
}

// SandboxModule returns the synthetic module identity that synthesized
// types and their (metadata-only) methods are attributed to.
func (o *Oracle) SandboxModule() *wire.Module {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sandbox == nil {
		o.sandbox = &wire.Module{RootName: "MagwireSandbox"}
	}
	return o.sandbox
}

// SynthesizeType installs a class for rec, named and shaped per its
// FieldNames, and returns a DataType descriptor naming it. Repeat calls
// for the same rec.ObjectNumber return the cached descriptor rather than
// registering a second class.
//
// Attached method definitions (rec.Methods) are not reinstalled as
// dispatchable methods: a MethodDescriptor is a structural record of a
// method's metadata (name, signature, source text) per the wire format,
// not compiled bytecode, and this module carries no source-to-bytecode
// compiler to turn one into the other. They are retained on the
// TypeNameRecord for inspection but never reach the class's vtable.
func (o *Oracle) SynthesizeType(rec *wire.TypeNameRecord) (*wire.TypeDescriptor, error) {
	if rec == nil {
		return nil, fmt.Errorf("vmwire: nil type name record")
	}
	o.mu.Lock()
	if td, ok := o.synthesized[rec.ObjectNumber]; ok {
		o.mu.Unlock()
		return td, nil
	}
	o.mu.Unlock()

	super := o.vm.ObjectClass
	if rec.Super != nil {
		sc, err := o.resolveClass(rec.Super)
		if err == nil {
			super = sc
		}
	}

	name := rec.Name
	if o.vm.Classes.Has(name) {
		name = fmt.Sprintf("%s$%d", rec.Name, rec.ObjectNumber)
	}
	c := vm.NewClassWithInstVars(name, super, append([]string(nil), rec.FieldNames...))
	o.vm.Classes.Register(c)

	td := &wire.TypeDescriptor{Kind: wire.DataType, Module: o.SandboxModule(), Name: name}

	o.mu.Lock()
	o.synthesized[rec.ObjectNumber] = td
	o.mu.Unlock()
	return td, nil
}

// AllocateInstance returns a field-uninitialized host value for td: a
// fresh (identity or value) dictionary Value when td names one of the
// two dictionary classes, otherwise a generic class instance.
func (o *Oracle) AllocateInstance(td *wire.TypeDescriptor) (any, error) {
	if o.IsDictType(td) {
		if td.Name == "IdentityDictionary" {
			return vm.NewIdentityDictionaryValue(), nil
		}
		return vm.NewDictionaryValue(), nil
	}
	c, err := o.resolveClass(td)
	if err != nil {
		return nil, err
	}
	return c.NewInstance().ToValue(), nil
}

// FieldCount reports the positional instance-variable count of td's
// class, inherited variables included (the decoder reads exactly that
// many OBJECT/REF_OBJECT payload values).
func (o *Oracle) FieldCount(td *wire.TypeDescriptor) (int, error) {
	c, err := o.resolveClass(td)
	if err != nil {
		return 0, err
	}
	return len(c.AllInstVarNames()), nil
}

// InstallField sets field index i of obj (a vm.Value from
// AllocateInstance) after hydrating value into a host vm.Value.
func (o *Oracle) InstallField(obj any, i int, value any) error {
	target, ok := obj.(vm.Value)
	if !ok {
		return fmt.Errorf("vmwire: InstallField: obj is not a vm.Value (%T)", obj)
	}
	ho := vm.ObjectFromValue(target)
	if ho == nil {
		return fmt.Errorf("vmwire: InstallField: value is not a heap object")
	}
	hv, err := o.ToHostValue(value)
	if err != nil {
		return err
	}
	if i < 0 || i >= ho.NumSlots() {
		return fmt.Errorf("vmwire: InstallField: slot %d out of range (%d slots)", i, ho.NumSlots())
	}
	ho.SetSlot(i, hv)
	return nil
}

// InstallDictEntry adds a key/value pair to obj (a dictionary Value from
// AllocateInstance), choosing identity or content hashing by the
// concrete dictionary type obj turns out to be.
func (o *Oracle) InstallDictEntry(obj any, key, value any) error {
	target, ok := obj.(vm.Value)
	if !ok {
		return fmt.Errorf("vmwire: InstallDictEntry: obj is not a vm.Value (%T)", obj)
	}
	hk, err := o.ToHostValue(key)
	if err != nil {
		return err
	}
	hv, err := o.ToHostValue(value)
	if err != nil {
		return err
	}
	if d := vm.GetDictionaryObject(target); d != nil {
		d.Put(hk, hv)
		return nil
	}
	if d := vm.GetIdentityDictionaryObject(target); d != nil {
		d.Put(hk, hv)
		return nil
	}
	return fmt.Errorf("vmwire: InstallDictEntry: obj is not a dictionary value")
}

// NewArrayStorage constructs an Array-class instance of len(product(shape))
// Nil-initialized slots. Unlike the rest of this interface, the decoder
// never calls this itself (wire.Array is self-describing and decodes to
// a *wire.Array without host involvement); convert.go calls it directly
// when hydrating a decoded *wire.Array into a live vm.Value.
func (o *Oracle) NewArrayStorage(elemType *wire.TypeDescriptor, shape []int) (any, error) {
	count := 1
	for _, d := range shape {
		count *= d
	}
	slots := make([]vm.Value, count)
	for i := range slots {
		slots[i] = vm.Nil
	}
	return o.vm.ArrayClass.NewInstanceWithSlots(slots).ToValue(), nil
}

// IsDictType reports whether td names either of the two host dictionary
// classes.
func (o *Oracle) IsDictType(td *wire.TypeDescriptor) bool {
	return td != nil && td.Kind == wire.DataType && (td.Name == "Dictionary" || td.Name == "IdentityDictionary")
}

// resolveClass finds the *vm.Class td names: a builtin/registered class
// by name for Kind == DataType (synthesized classes are registered under
// their chosen name too, so no separate lookup path is needed), or an
// error for the wrapper/full-data-type kinds this adapter does not
// resolve through the class table.
func (o *Oracle) resolveClass(td *wire.TypeDescriptor) (*vm.Class, error) {
	if td == nil {
		return nil, fmt.Errorf("vmwire: nil type descriptor")
	}
	switch td.Kind {
	case wire.DataType:
		if c := o.vm.LookupClass(td.Name); c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("vmwire: unknown class %q", td.Name)
	default:
		return nil, fmt.Errorf("vmwire: cannot resolve a class for type descriptor kind %v", td.Kind)
	}
}
