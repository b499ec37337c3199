package wire

// TypeOracle is the runtime-type-resolution boundary the decoder depends
// on (§6). It is the only place the codec touches a concrete host; every
// other file in this package is pure wire-format logic over the domain
// types in domain.go.
//
// vmwire implements this interface against the NaN-boxed object VM; a
// different host would supply its own implementation and nothing else
// in this package would need to change.
type TypeOracle interface {
	// ResolveGlobal returns the global binding for name in the module
	// identified by mod, or ok=false if no such binding exists.
	ResolveGlobal(mod *Module, name string) (value any, ok bool)

	// SandboxModule returns (creating if necessary) the reader-owned
	// synthetic module that synthesized types and their methods are
	// installed into.
	SandboxModule() *Module

	// SynthesizeType installs a type described by rec into the sandbox
	// namespace, reinstalling any attached method definitions through
	// the host's method-registration primitive when one exists. It is
	// called at most once per distinct ObjectNumber per reader session.
	SynthesizeType(rec *TypeNameRecord) (*TypeDescriptor, error)

	// AllocateInstance returns a new, field-uninitialized host value of
	// the type named by td, suitable for installation into the slot
	// table before its fields are read (the REF_OBJECT protocol).
	AllocateInstance(td *TypeDescriptor) (any, error)

	// FieldCount reports how many positional fields td's instances carry,
	// so the decoder knows how many OBJECT/REF_OBJECT payload values to
	// read without separately transmitting a count on the wire.
	FieldCount(td *TypeDescriptor) (int, error)

	// InstallField sets field index i of obj to value. obj is a value
	// previously returned by AllocateInstance.
	InstallField(obj any, i int, value any) error

	// InstallDictEntry adds a key/value pair to obj, a dictionary-shaped
	// value previously returned by AllocateInstance for a type the host
	// recognizes as value-hashed (Dict) or identity-hashed (IDDict). The
	// wire format distinguishes the two only by type name; the oracle
	// decides hashing discipline from that name.
	InstallDictEntry(obj any, key, value any) error

	// NewArrayStorage constructs host-native arrayed storage for shape
	// and elemType, used once the decoder has read an ARRAY's header but
	// before its elements are read.
	NewArrayStorage(elemType *TypeDescriptor, shape []int) (any, error)

	// IsDictType reports whether td names a value-hashed dictionary type,
	// so the decoder's REF_OBJECT field reader switches from the generic
	// per-declared-field routine to the count+pairs routine the wire
	// format uses for dictionaries instead of a dedicated tag.
	IsDictType(td *TypeDescriptor) bool
}
