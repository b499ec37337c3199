package wire

import "io"

// pendingSlot is a reserved-but-not-yet-resolved slot: either a mutable
// object under construction (REF_OBJECT) whose fields are still being
// filled in, or a forward reference the caller must resolve once the
// object it names finishes decoding.
type pendingSlot struct {
	slot  uint64
	value any // the partially-built object, installed before its fields decode
}

// Reader holds all per-stream state for decoding: the source, the running
// slot counter (mirrors the Writer's), the slot table mapping assigned
// slots to their resolved values, and the pending-slot stack used while a
// mutable object's fields are still being read (§4.3, §4.5's REF_OBJECT
// protocol).
type Reader struct {
	r       io.Reader
	counter uint64

	slots map[uint64]any

	pending []pendingSlot

	// Known is the optional process-wide known-object-by-number map,
	// shared with other Readers/Writers that must agree on type-name and
	// method identities across streams.
	Known *KnownObjects

	// Oracle binds this Reader to a concrete host runtime for type
	// synthesis, instance allocation, and dictionary construction.
	// Required for any decode that touches FULL_DATATYPE, OBJECT,
	// REF_OBJECT, or IDDICT; DATATYPE, GLOBALREF and ARRAY values decode
	// without one.
	Oracle TypeOracle

	version byte // peer version negotiated from the header
}

// NewReader returns a Reader with a private known-object table. oracle
// may be nil only if the caller is certain the stream contains none of
// the tags that require host binding (rare outside of unit tests).
func NewReader(r io.Reader, oracle TypeOracle) *Reader {
	return NewReaderShared(r, oracle, NewKnownObjects())
}

// NewReaderShared returns a Reader backed by a shared known-object table.
func NewReaderShared(r io.Reader, oracle TypeOracle, known *KnownObjects) *Reader {
	return &Reader{
		r:      r,
		slots:  make(map[uint64]any),
		Known:  known,
		Oracle: oracle,
	}
}

func (r *Reader) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, wrapIO("read byte", err)
	}
	return buf[0], nil
}

func (r *Reader) readBytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, wrapIO("read bytes", err)
	}
	return buf, nil
}

// readTag reads the next dispatch byte.
func (r *Reader) readTag() (Tag, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	return Tag(b), nil
}

// readTagAsValue is the decode-side counterpart of Writer.emitTagAsValue:
// it undoes the zero-byte escape used when a control-band tag appears as
// a first-class value rather than as a structural operator.
func (r *Reader) readTagAsValue() (Tag, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	if b != 0 {
		return Tag(b), nil
	}
	b2, err := r.readByte()
	if err != nil {
		return 0, err
	}
	return Tag(b2), nil
}

// ReadHeader reads and validates the 8-byte stream header, recording the
// negotiated peer version for later reference.
func (r *Reader) ReadHeader() (Header, error) {
	buf, err := r.readBytes(8)
	if err != nil {
		return Header{}, err
	}
	var arr [8]byte
	copy(arr[:], buf)
	h, err := DecodeHeader(arr)
	if err != nil {
		return Header{}, err
	}
	r.version = h.Version
	return h, nil
}

// reserveSlot assigns the next slot number, mirroring the Writer's
// counter without yet knowing the slot's value.
func (r *Reader) reserveSlot() uint64 {
	s := r.counter
	r.counter++
	return s
}

// bindSlot records the fully-resolved value for a just-reserved slot.
func (r *Reader) bindSlot(slot uint64, value any) {
	r.slots[slot] = value
}

// resolveBackref looks up a previously bound slot. A miss is a
// DesyncError: the writer and reader have fallen out of step.
func (r *Reader) resolveBackref(slot uint64) (any, error) {
	v, ok := r.slots[slot]
	if !ok {
		return nil, &DesyncError{Reason: "backref to unknown slot", Slot: slot}
	}
	return v, nil
}

// readBackrefSlot reads the slot payload following one of the three
// backref tags.
func (r *Reader) readBackrefSlot(t Tag) (uint64, error) {
	switch t {
	case TagShortBackref:
		b, err := r.readBytes(2)
		if err != nil {
			return 0, err
		}
		return uint64(readBE16(b)), nil
	case TagBackref:
		b, err := r.readBytes(4)
		if err != nil {
			return 0, err
		}
		return uint64(readBE32(b)), nil
	case TagLongBackref:
		b, err := r.readBytes(8)
		if err != nil {
			return 0, err
		}
		return readBE64(b), nil
	default:
		return 0, &DesyncError{Reason: "not a backref tag", Tag: t}
	}
}

func (r *Reader) pushPending(p pendingSlot) { r.pending = append(r.pending, p) }

func (r *Reader) popPending() (pendingSlot, bool) {
	if len(r.pending) == 0 {
		return pendingSlot{}, false
	}
	p := r.pending[len(r.pending)-1]
	r.pending = r.pending[:len(r.pending)-1]
	return p, true
}

