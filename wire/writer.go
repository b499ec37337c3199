package wire

import (
	"io"
	"sync"
)

// KnownObjects is the process-wide known-object-by-number map (§3, §5).
// A single instance may be shared by many Writers and Readers; all of its
// methods are safe for concurrent use. Its persistent variant lives in
// cache.go.
type KnownObjects struct {
	mu      sync.Mutex
	numbers map[any]uint64
	objects map[uint64]any
	next    uint64
	backing *PersistentCache
}

// NewKnownObjects returns a fresh, empty, process-local known-object
// table. Share one instance across Writers/Readers that must agree on
// stable object numbers.
func NewKnownObjects() *KnownObjects {
	return &KnownObjects{
		numbers: make(map[any]uint64),
		objects: make(map[uint64]any),
	}
}

// NumberFor returns the stable object number for obj (an identity key,
// typically a pointer), assigning a fresh one on first sight.
func (k *KnownObjects) NumberFor(obj any) (number uint64, isNew bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if n, ok := k.numbers[obj]; ok {
		return n, false
	}
	n := k.next
	k.next++
	k.numbers[obj] = n
	return n, true
}

// Lookup returns the cached object for a received stable number, as
// populated by Store. On an in-memory miss, and only when a
// PersistentCache has been Attached, it falls through to the SQLite
// table; oracle is used to resolve any synthesized types the cached
// body references and may be nil when the caller knows none exist.
func (k *KnownObjects) Lookup(number uint64, oracle TypeOracle) (any, bool) {
	k.mu.Lock()
	if v, ok := k.objects[number]; ok {
		k.mu.Unlock()
		return v, ok
	}
	backing := k.backing
	k.mu.Unlock()
	if backing == nil {
		return nil, false
	}
	v, ok := backing.load(number, oracle)
	if !ok {
		return nil, false
	}
	k.mu.Lock()
	k.objects[number] = v
	k.mu.Unlock()
	return v, true
}

// Store caches a received object under its stable number, writing it
// through to an attached PersistentCache if one is present.
func (k *KnownObjects) Store(number uint64, obj any) {
	k.mu.Lock()
	k.objects[number] = obj
	backing := k.backing
	k.mu.Unlock()
	if backing != nil {
		backing.save(number, obj)
	}
}

// Writer holds all per-stream state for encoding: the sink, the
// monotonically increasing slot counter, the identity-keyed
// back-reference map, and the canonicalized string/symbol tables. Unlike
// the reader, the writer needs no pending-slot stack of its own: a
// mutable value's slot is reserved in identity before its fields are
// encoded, which is enough for a recursive Encode call to close a cycle
// with a plain back-reference.
type Writer struct {
	w       io.Writer
	counter uint64

	identity    map[any]uint64    // pointer identity -> slot
	stringSlots map[string]uint64 // canonicalized strings (len > 7) -> slot
	symbolSlots map[string]uint64 // canonicalized symbols (len > 7) -> slot

	// Known is the optional process-wide known-object-by-number map used
	// for type-name records and method definitions. Nil means every
	// Writer gets its own (effectively stream-scoped) table; a stream-
	// scoped table's NumberFor reports isNew=true exactly once per
	// distinct record, which is exactly the per-stream dedup the format
	// requires even without cross-stream sharing.
	Known *KnownObjects
}

// NewWriter returns a Writer with a private (non-shared) known-object
// table.
func NewWriter(w io.Writer) *Writer {
	return NewWriterShared(w, NewKnownObjects())
}

// NewWriterShared returns a Writer backed by a shared known-object
// table, letting type-name records and method definitions deduplicate
// across multiple streams within the same process.
func NewWriterShared(w io.Writer, known *KnownObjects) *Writer {
	return &Writer{
		w:           w,
		identity:    make(map[any]uint64),
		stringSlots: make(map[string]uint64),
		symbolSlots: make(map[string]uint64),
		Known:       known,
	}
}

// Reset clears the counter, identity map, and string/symbol tables so
// the Writer can be reused for a new stream. The Known table, if shared,
// is left untouched — it is process-wide by design.
func (w *Writer) Reset() {
	w.counter = 0
	w.identity = make(map[any]uint64)
	w.stringSlots = make(map[string]uint64)
	w.symbolSlots = make(map[string]uint64)
}

func (w *Writer) emitByte(b byte) error {
	_, err := w.w.Write([]byte{b})
	return wrapIO("write byte", err)
}

func (w *Writer) emitBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := w.w.Write(b)
	return wrapIO("write bytes", err)
}

// emitTag writes a tag byte directly, as a structural operator.
func (w *Writer) emitTag(t Tag) error {
	return w.emitByte(byte(t))
}

func isControlTag(t Tag) bool {
	return (int(t) >= numTypeTags && int(t) < literalBandStart) || t == TagHeader
}

// emitTagAsValue writes t as if it were a value being referenced (for
// example, a builtin type used as a first-class value). Control-band
// tags are escaped with a leading zero byte so the reader can tell them
// apart from the dispatch-context meaning of the same byte.
func (w *Writer) emitTagAsValue(t Tag) error {
	if isControlTag(t) {
		if err := w.emitByte(0); err != nil {
			return err
		}
	}
	return w.emitByte(byte(t))
}

// WriteHeader writes the 8-byte stream header.
func (w *Writer) WriteHeader(h Header) error {
	buf := h.Encode()
	return w.emitBytes(buf[:])
}

// tryBackrefIdentity looks up key (normally a pointer) in the identity
// map. If present, it reports the stored slot and found=true. Otherwise
// it reserves the next slot, records it, and reports found=false — the
// caller must then emit the value's full representation.
func (w *Writer) tryBackrefIdentity(key any) (slot uint64, found bool) {
	if s, ok := w.identity[key]; ok {
		return s, true
	}
	slot = w.counter
	w.counter++
	w.identity[key] = slot
	return slot, false
}

// tryBackrefCanonical is tryBackrefIdentity for the content-keyed
// canonicalization tables used by long strings and long symbols.
func (w *Writer) tryBackrefCanonical(table map[string]uint64, key string) (slot uint64, found bool) {
	if s, ok := table[key]; ok {
		return s, true
	}
	slot = w.counter
	w.counter++
	table[key] = slot
	return slot, false
}

// emitBackref writes the narrowest backref tag that can hold slot.
func (w *Writer) emitBackref(slot uint64) error {
	switch {
	case slot <= 0xFFFF:
		if err := w.emitTag(TagShortBackref); err != nil {
			return err
		}
		return w.emitBytes(be16(uint16(slot)))
	case slot <= 0xFFFFFFFF:
		if err := w.emitTag(TagBackref); err != nil {
			return err
		}
		return w.emitBytes(be32(uint32(slot)))
	default:
		if err := w.emitTag(TagLongBackref); err != nil {
			return err
		}
		return w.emitBytes(be64(slot))
	}
}
