package wire

import "fmt"

// HeaderError reports a malformed or incompatible stream header: magic
// mismatch, endianness mismatch, or a peer protocol version newer than
// this reader's.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("wire: bad header: %s", e.Reason)
}

// DesyncError reports an unknown tag or a back-reference to a slot the
// reader never assigned. Desynchronization is unrecoverable; the stream
// must be discarded.
type DesyncError struct {
	Reason string
	Tag    Tag
	Slot   uint64
	cause  error
}

func (e *DesyncError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("wire: desync: %s (tag=%#x slot=%d): %v", e.Reason, byte(e.Tag), e.Slot, e.cause)
	}
	return fmt.Sprintf("wire: desync: %s (tag=%#x slot=%d)", e.Reason, byte(e.Tag), e.Slot)
}

func (e *DesyncError) Unwrap() error { return e.cause }

// UnsupportedValueError reports an attempt to serialize a value the spec
// explicitly excludes: a running task, a method with an external dispatch
// table, an atomic raw buffer, or a non-nil raw native pointer.
type UnsupportedValueError struct {
	Kind   string
	Reason string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("wire: cannot serialize %s: %s", e.Kind, e.Reason)
}

// CycleConstructionError reports a type-name record whose super-type or a
// parameter is itself still under construction — a not-yet-bound
// reference at type-synthesis time.
type CycleConstructionError struct {
	TypeName string
}

func (e *CycleConstructionError) Error() string {
	return fmt.Sprintf("wire: recursive type cycle constructing %q", e.TypeName)
}

// IOError wraps an underlying stream read/write failure, including a
// short read at end-of-stream, which the spec treats as an error rather
// than a legitimate end-of-value signal.
type IOError struct {
	Op    string
	cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wire: %s: %v", e.Op, e.cause)
}

func (e *IOError) Unwrap() error { return e.cause }

func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, cause: err}
}
