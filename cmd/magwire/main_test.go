package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/magwire/vm"
	"github.com/chazu/magwire/vmwire"
	"github.com/chazu/magwire/wire"
)

// TestFixtureRoundTrip exercises the CLI's encode/decode path end to end
// without an on-disk image: runEncode builds the built-in fixture value,
// writes it to a file, and runDecode must read it back and describe it the
// same way describeHostValue would for the original value.
func TestFixtureRoundTrip(t *testing.T) {
	vmInst := vm.NewVM()
	oracle := vmwire.NewOracle(vmInst)

	dir := t.TempDir()
	out := filepath.Join(dir, "fixture.wire")

	if err := runEncode(vmInst, oracle, "fixture", "Main", out, false, false); err != nil {
		t.Fatalf("runEncode: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("encoded wire stream is empty")
	}

	want := describeHostValue(fixtureValue(vmInst))

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	origStdout := os.Stdout
	os.Stdout = w
	decodeErr := runDecode(oracle, out, false, false)
	w.Close()
	os.Stdout = origStdout
	if decodeErr != nil {
		t.Fatalf("runDecode: %v", decodeErr)
	}

	var captured bytes.Buffer
	if _, err := captured.ReadFrom(r); err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	got := bytes.TrimSpace(captured.Bytes())
	if string(got) != want {
		t.Errorf("decoded description = %q, want %q", got, want)
	}
}

// TestFixtureRoundTripWithCBOREnvelope exercises the -debug-cbor path, which
// wraps the wire stream in the CBOR interop envelope on encode and unwraps
// it again on decode.
func TestFixtureRoundTripWithCBOREnvelope(t *testing.T) {
	vmInst := vm.NewVM()
	oracle := vmwire.NewOracle(vmInst)

	dir := t.TempDir()
	out := filepath.Join(dir, "fixture.cbor")

	if err := runEncode(vmInst, oracle, "fixture", "Main", out, false, true); err != nil {
		t.Fatalf("runEncode: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if _, err := wire.UnmarshalCapturedStream(raw); err != nil {
		t.Fatalf("output is not a valid CBOR envelope: %v", err)
	}

	if err := runDecode(oracle, out, false, true); err != nil {
		t.Fatalf("runDecode: %v", err)
	}
}

// TestRunEncodeMissingImage verifies that encoding against an image path
// that does not exist fails instead of silently falling back to the
// fixture value.
func TestRunEncodeMissingImage(t *testing.T) {
	vmInst := vm.NewVM()
	oracle := vmwire.NewOracle(vmInst)

	err := runEncode(vmInst, oracle, filepath.Join(t.TempDir(), "missing.image"), "Main", "", false, false)
	if err == nil {
		t.Fatal("expected an error loading a nonexistent image")
	}
}

func TestRunDecodeMissingFile(t *testing.T) {
	oracle := vmwire.NewOracle(vm.NewVM())
	err := runDecode(oracle, filepath.Join(t.TempDir(), "missing.wire"), false, false)
	if err == nil {
		t.Fatal("expected an error reading a nonexistent wire file")
	}
}

func TestDescribeHostValue(t *testing.T) {
	vmInst := vm.NewVM()

	if got := describeHostValue(vm.FromSmallInt(42)); got != "SmallInteger(42)" {
		t.Errorf("describeHostValue(SmallInt) = %q", got)
	}
	if got := describeHostValue(vm.NewStringValue("hi")); got != `String("hi")` {
		t.Errorf("describeHostValue(String) = %q", got)
	}

	dict := vmInst.ArrayClass.NewInstanceWithSlots(nil).ToValue()
	if got := describeHostValue(dict); got == "" {
		t.Error("describeHostValue should not return an empty string for an object")
	}
}

func TestRootTypeName(t *testing.T) {
	cases := []struct {
		v    any
		want string
	}{
		{&wire.Record{}, "Record"},
		{&wire.Dict{}, "Dictionary"},
		{&wire.IDDict{}, "Dictionary"},
		{&wire.Array{}, "Array"},
	}
	for _, c := range cases {
		if got := rootTypeName(c.v); got != c.want {
			t.Errorf("rootTypeName(%T) = %q, want %q", c.v, got, c.want)
		}
	}
}
