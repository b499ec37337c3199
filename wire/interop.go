package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CapturedStream is a debug/interop envelope for shipping a captured
// wire-format byte stream as a single opaque payload over a transport
// that has no notion of this package's tag format (§6.2). It is not a
// replacement for the raw stream, which remains the codec's canonical
// output. Its canonical CBOR encoding is plain bytes that a transport can
// carry as opaque content without importing this package; this module
// contains no such transport itself.
type CapturedStream struct {
	Version      byte   `cbor:"1,keyasint"`
	RootTypeName string `cbor:"2,keyasint"`
	Payload      []byte `cbor:"3,keyasint"`
}

var interopEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	interopEncMode = em
}

// Capture wraps a raw wire stream, as produced by Serialize, and the host
// type name of its root value into a CapturedStream envelope.
func Capture(rootTypeName string, payload []byte) *CapturedStream {
	return &CapturedStream{Version: Version, RootTypeName: rootTypeName, Payload: payload}
}

// Marshal renders the envelope as canonical CBOR bytes.
func (c *CapturedStream) Marshal() ([]byte, error) {
	return interopEncMode.Marshal(c)
}

// UnmarshalCapturedStream parses a canonical CBOR envelope back into its
// fields.
func UnmarshalCapturedStream(data []byte) (*CapturedStream, error) {
	var c CapturedStream
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("wire: unmarshal captured stream: %w", err)
	}
	return &c, nil
}
