// magwire CLI - encode and decode host object graphs on the wire format
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/chazu/magwire/vm"
	"github.com/chazu/magwire/vmwire"
	"github.com/chazu/magwire/wire"
)

func main() {
	encodeImage := flag.String("encode", "", "Load a .image file and encode a root global from it; pass an empty path to encode the built-in fixture instead")
	decodeFile := flag.String("decode", "", "Decode a wire-format file and print an inspection summary")
	global := flag.String("global", "Main", "Global name to encode (used with -encode when an image path is given)")
	output := flag.String("o", "", "Output file for -encode (defaults to stdout)")
	verbose := flag.Bool("v", false, "Verbose output (byte counts, structure)")
	debugCBOR := flag.Bool("debug-cbor", false, "Wrap/unwrap the CBOR interop envelope instead of the raw wire stream")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: magwire -encode <image> | -decode <file> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Encodes or decodes a host object graph in magwire's tag-driven binary format.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  magwire -encode app.image -global Main -o app.wire\n")
		fmt.Fprintf(os.Stderr, "  magwire -encode app.image -o app.wire -debug-cbor -v\n")
		fmt.Fprintf(os.Stderr, "  magwire -decode app.wire -v\n")
		fmt.Fprintf(os.Stderr, "  magwire -encode fixture -o fixture.wire   # 'fixture' has no on-disk image\n")
	}
	flag.Parse()

	encodeSet := isFlagSet("encode")
	decodeSet := isFlagSet("decode")
	if encodeSet == decodeSet {
		fmt.Fprintln(os.Stderr, "exactly one of -encode or -decode is required")
		flag.Usage()
		os.Exit(2)
	}

	vmInst := vm.NewVM()
	oracle := vmwire.NewOracle(vmInst)

	var err error
	if encodeSet {
		err = runEncode(vmInst, oracle, *encodeImage, *global, *output, *verbose, *debugCBOR)
	} else {
		err = runDecode(oracle, *decodeFile, *verbose, *debugCBOR)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "magwire: %v\n", err)
		os.Exit(1)
	}
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func runEncode(vmInst *vm.VM, oracle *vmwire.Oracle, imagePath, globalName, outPath string, verbose, debugCBOR bool) error {
	var hostValue vm.Value
	if imagePath != "" && imagePath != "fixture" {
		if err := vmInst.LoadImage(imagePath); err != nil {
			return fmt.Errorf("loading image %s: %w", imagePath, err)
		}
		v, ok := vmInst.Globals[globalName]
		if !ok {
			return fmt.Errorf("no global named %q in %s", globalName, imagePath)
		}
		hostValue = v
		if verbose {
			fmt.Fprintf(os.Stderr, "loaded %s, encoding global %q\n", imagePath, globalName)
		}
	} else {
		hostValue = fixtureValue(vmInst)
		if verbose {
			fmt.Fprintln(os.Stderr, "encoding the built-in fixture value")
		}
	}

	rootValue, err := oracle.ValueToWire(hostValue)
	if err != nil {
		return fmt.Errorf("converting host value to wire domain: %w", err)
	}

	var stream bytes.Buffer
	if err := wire.Serialize(&stream, rootValue); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	out := stream.Bytes()
	if debugCBOR {
		captured := wire.Capture(rootTypeName(rootValue), stream.Bytes())
		envelope, err := captured.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling CBOR envelope: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "wire stream %s, CBOR envelope %s\n",
				humanize.Bytes(uint64(stream.Len())), humanize.Bytes(uint64(len(envelope))))
		}
		out = envelope
	} else if verbose {
		fmt.Fprintf(os.Stderr, "wire stream %s\n", humanize.Bytes(uint64(len(out))))
	}

	if outPath == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(outPath, out, 0o644)
}

func runDecode(oracle *vmwire.Oracle, path string, verbose, debugCBOR bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	payload := raw
	if debugCBOR {
		captured, err := wire.UnmarshalCapturedStream(raw)
		if err != nil {
			return fmt.Errorf("unmarshaling CBOR envelope: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "envelope: wire version %d, root type %q\n", captured.Version, captured.RootTypeName)
		}
		payload = captured.Payload
	}

	got, err := wire.Deserialize(bytes.NewReader(payload), oracle)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	hostValue, err := oracle.ToHostValue(got)
	if err != nil {
		return fmt.Errorf("converting wire value to host value: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "decoded %s (%s)\n", path, humanize.Bytes(uint64(len(raw))))
	}
	fmt.Printf("%s\n", describeHostValue(hostValue))
	return nil
}

// fixtureValue builds a small, self-contained object graph for -encode when
// no image is given: a dictionary with a string key, a small integer, and a
// nested array, enough to exercise the dictionary, string, small-integer
// and array encoding paths without needing a compiled program.
func fixtureValue(vmInst *vm.VM) vm.Value {
	dict := vm.NewDictionaryValue()
	entries := vm.GetDictionaryObject(dict)
	entries.Put(vm.NewStringValue("name"), vm.NewStringValue("magwire fixture"))
	entries.Put(vm.NewStringValue("count"), vm.FromSmallInt(3))
	arr := vmInst.ArrayClass.NewInstanceWithSlots([]vm.Value{
		vm.FromSmallInt(1), vm.FromSmallInt(2), vm.FromSmallInt(3),
	}).ToValue()
	entries.Put(vm.NewStringValue("values"), arr)
	return dict
}

func describeHostValue(v vm.Value) string {
	switch {
	case v.IsSmallInt():
		return fmt.Sprintf("SmallInteger(%d)", v.SmallInt())
	case v.IsFloat():
		return fmt.Sprintf("Float(%v)", v.Float64())
	case vm.IsStringValue(v):
		return fmt.Sprintf("String(%q)", vm.GetStringContent(v))
	case vm.IsDictionaryValue(v):
		return fmt.Sprintf("Dictionary(%d entries)", len(vm.GetDictionaryObject(v).Entries()))
	case vm.IsIdentityDictionaryValue(v):
		return fmt.Sprintf("IdentityDictionary(%d entries)", len(vm.GetIdentityDictionaryObject(v).Entries()))
	case v.IsObject():
		return fmt.Sprintf("Object(%d slots)", vm.ObjectFromValue(v).NumSlots())
	default:
		return fmt.Sprintf("%v", v)
	}
}

func rootTypeName(v any) string {
	switch v.(type) {
	case *wire.Record:
		return "Record"
	case *wire.Dict, *wire.IDDict:
		return "Dictionary"
	case *wire.Array:
		return "Array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
