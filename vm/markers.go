package vm

// ---------------------------------------------------------------------------
// Centralized NaN-boxing marker allocation table
// ---------------------------------------------------------------------------
//
// Every symbol-encoded (non-object, non-float) value type in the VM uses a
// unique marker byte stored in bits 24-31 of the symbol ID. This file is the
// single source of truth for all marker allocations.
//
// To add a new marker:
//   1. Pick the next available value from the table below.
//   2. Define the constant here (e.g. myTypeMarker).
//   3. Use the constant in the relevant file's encoding/decoding helpers.
//
// IMPORTANT: Once assigned, marker values must NEVER change — they are part of
// the image format and wire protocol.

const (
	// Concurrency primitives
	// channelMarker, processMarker, resultMarker, exceptionMarker,
	// cancellationContextMarker, classValueMarker, characterMarker, and
	// goObjectMarker are defined alongside their respective value types
	// (concurrency.go, result.go, exception.go, cancellation.go,
	// class_value.go, character.go, go_object.go) but reserved here too.
	grpcClientMarker uint32 = 7 << 24
	grpcStreamMarker uint32 = 9 << 24
	weakRefMarker    uint32 = 16 << 24
	mutexMarker      uint32 = 32 << 24
	waitGroupMarker  uint32 = 33 << 24
	semaphoreMarker  uint32 = 34 << 24
	httpServerMarker uint32 = 38 << 24
	httpRequestMarker uint32 = 39 << 24
	httpResponseMarker uint32 = 40 << 24

	// Distribution protocol (reserved for Phase 6)
	chunkMarker     uint32 = 42 << 24
	remoteRefMarker uint32 = 43 << 24
	promiseMarker   uint32 = 44 << 24
)

// markerMask extracts the marker byte from a symbol ID.
const markerMask uint32 = 0xFF << 24

// IsPlainSymbolValue reports whether v is a true interned symbol rather
// than one of the other value kinds sharing the symbol tag (string,
// dictionary, process, channel, character, ...), each distinguished by a
// nonzero marker byte an interned symbol ID never sets.
func IsPlainSymbolValue(v Value) bool {
	if !v.IsSymbol() {
		return false
	}
	return v.SymbolID()&markerMask == 0
}
