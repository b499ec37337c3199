package wire

import (
	"io"
	"os"
)

// Serialize writes the host header followed by the encoded value to sink.
func Serialize(sink io.Writer, value any) error {
	w := NewWriter(sink)
	if err := w.WriteHeader(HostHeader()); err != nil {
		return err
	}
	return w.Encode(value)
}

// SerializeNoHeader encodes value into an existing writer session with no
// header, for batching several values behind a single header written up
// front.
func SerializeNoHeader(w *Writer, value any) error {
	return w.Encode(value)
}

// Deserialize reads a header then decodes one value from source, using
// oracle to resolve and synthesize host types.
func Deserialize(source io.Reader, oracle TypeOracle) (any, error) {
	r := NewReader(source, oracle)
	if _, err := r.ReadHeader(); err != nil {
		return nil, err
	}
	return r.Decode()
}

// DeserializeNoHeader decodes one value continuing an existing reader
// session that has already consumed (or never had) a header.
func DeserializeNoHeader(r *Reader) (any, error) {
	return r.Decode()
}

// SerializeFile opens name for writing, truncating any existing contents,
// and writes the header plus the encoded value to it.
func SerializeFile(name string, value any) error {
	f, err := os.Create(name)
	if err != nil {
		return wrapIO("create "+name, err)
	}
	defer f.Close()
	return Serialize(f, value)
}

// DeserializeFile opens name for reading and decodes the single value it
// holds, using oracle to resolve and synthesize host types.
func DeserializeFile(name string, oracle TypeOracle) (any, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, wrapIO("open "+name, err)
	}
	defer f.Close()
	return Deserialize(f, oracle)
}
