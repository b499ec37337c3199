package vm

import (
	"sync"
)

// ---------------------------------------------------------------------------
// IdentityDictionary Storage: Native Go maps wrapped for the VM
// ---------------------------------------------------------------------------

// IdentityDictionaryObject represents a Maggie identity dictionary: keys
// are compared by identity (their raw NaN-boxed bits), never by content.
// Unlike DictionaryObject, there is no string-content special case — two
// distinct string objects with equal content are distinct keys here.
type IdentityDictionaryObject struct {
	Data map[uint64]Value // raw bits -> value
	Keys map[uint64]Value // raw bits -> key
}

// identityDictRegistry stores active identity dictionaries, mirroring
// dictionaryRegistry's shape.
var identityDictRegistry = struct {
	sync.RWMutex
	dicts  map[uint32]*IdentityDictionaryObject
	nextID uint32
}{
	dicts:  make(map[uint32]*IdentityDictionaryObject),
	nextID: 0xD0000000, // above dictionaryIDOffset, below no further range in use
}

// identityDictionaryIDOffset is the starting offset for identity
// dictionary IDs, and the upper bound (exclusive) of the plain
// Dictionary ID range.
const identityDictionaryIDOffset uint32 = 0xD0000000

// NewIdentityDictionaryValue creates a new empty identity dictionary Value.
func NewIdentityDictionaryValue() Value {
	identityDictRegistry.Lock()
	defer identityDictRegistry.Unlock()

	id := identityDictRegistry.nextID
	identityDictRegistry.nextID++
	identityDictRegistry.dicts[id] = &IdentityDictionaryObject{
		Data: make(map[uint64]Value),
		Keys: make(map[uint64]Value),
	}
	return FromSymbolID(id)
}

// IsIdentityDictionaryValue returns true if the value is an identity
// dictionary object.
func IsIdentityDictionaryValue(v Value) bool {
	if !v.IsSymbol() {
		return false
	}
	return v.SymbolID() >= identityDictionaryIDOffset
}

// GetIdentityDictionaryObject returns the IdentityDictionaryObject for a
// Value. Returns nil if v is not an identity dictionary.
func GetIdentityDictionaryObject(v Value) *IdentityDictionaryObject {
	if !IsIdentityDictionaryValue(v) {
		return nil
	}
	id := v.SymbolID()

	identityDictRegistry.RLock()
	defer identityDictRegistry.RUnlock()

	if obj, ok := identityDictRegistry.dicts[id]; ok {
		return obj
	}
	return nil
}

// Put inserts or overwrites a key/value pair in d, keyed by key's raw
// bits rather than any content-aware hash.
func (d *IdentityDictionaryObject) Put(key, value Value) {
	h := uint64(key)
	d.Data[h] = value
	d.Keys[h] = key
}

// Entries returns the dictionary's key/value pairs in unspecified order.
func (d *IdentityDictionaryObject) Entries() []DictEntry {
	out := make([]DictEntry, 0, len(d.Keys))
	for h, key := range d.Keys {
		out = append(out, DictEntry{Key: key, Value: d.Data[h]})
	}
	return out
}

// registerIdentityDictionaryPrimitives registers IdentityDictionary
// primitives on the VM, mirroring registerDictionaryPrimitives but with
// raw-bits identity hashing throughout.
func (vm *VM) registerIdentityDictionaryPrimitives() {
	c := vm.IdentityDictionaryClass

	c.AddMethod0(vm.Selectors, "new", func(_ interface{}, recv Value) Value {
		return NewIdentityDictionaryValue()
	})

	c.AddMethod1(vm.Selectors, "at:", func(_ interface{}, recv Value, key Value) Value {
		dict := GetIdentityDictionaryObject(recv)
		if dict == nil {
			return Nil
		}
		if val, ok := dict.Data[uint64(key)]; ok {
			return val
		}
		return Nil
	})

	c.AddMethod2(vm.Selectors, "at:put:", func(_ interface{}, recv Value, key, value Value) Value {
		dict := GetIdentityDictionaryObject(recv)
		if dict == nil {
			return value
		}
		dict.Put(key, value)
		return value
	})

	c.AddMethod2(vm.Selectors, "at:ifAbsent:", func(vmPtr interface{}, recv Value, key, block Value) Value {
		v := vmPtr.(*VM)
		dict := GetIdentityDictionaryObject(recv)
		if dict == nil {
			return Nil
		}
		if val, ok := dict.Data[uint64(key)]; ok {
			return val
		}
		return v.Send(block, "value", nil)
	})

	c.AddMethod1(vm.Selectors, "includesKey:", func(_ interface{}, recv Value, key Value) Value {
		dict := GetIdentityDictionaryObject(recv)
		if dict == nil {
			return False
		}
		_, ok := dict.Data[uint64(key)]
		return FromBool(ok)
	})

	c.AddMethod0(vm.Selectors, "size", func(_ interface{}, recv Value) Value {
		dict := GetIdentityDictionaryObject(recv)
		if dict == nil {
			return FromSmallInt(0)
		}
		return FromSmallInt(int64(len(dict.Data)))
	})
}
