package wire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
)

// describeValue renders a decoded value into a small deterministic text
// form, used only to compare against the golden fixtures below. It covers
// exactly the shapes the fixtures in testdata/ exercise.
func describeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case Undef:
		return "undef"
	case bool:
		return fmt.Sprintf("bool(%t)", x)
	case int8, int16, int32, int64, int:
		return fmt.Sprintf("int(%v)", x)
	case uint8, uint16, uint32, uint64:
		return fmt.Sprintf("uint(%v)", x)
	case float32, float64:
		return fmt.Sprintf("float(%v)", x)
	case string:
		return fmt.Sprintf("string(%q)", x)
	case Char:
		return fmt.Sprintf("char(%q)", rune(x))
	case *Symbol:
		return fmt.Sprintf("symbol(%q)", x.Name)
	case *Module:
		return fmt.Sprintf("module(%s/%s)", x.RootName, strings.Join(x.Path, "/"))
	case *GlobalRef:
		if x.Full {
			return fmt.Sprintf("globalref(full type=%s)", describeValue(x.Type))
		}
		return fmt.Sprintf("globalref(%s %s)", describeValue(x.Module), x.Name)
	case *TypeDescriptor:
		return fmt.Sprintf("type(%s)", x.Name)
	case *Tuple:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = describeValue(e)
		}
		return "tuple[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// goldenCases maps each wire/testdata/<name>.txtar fixture to the value it
// builds and serializes. Each fixture's txtar archive carries a human
// comment describing the scenario plus a "want.txt" section holding the
// describeValue text the round-tripped value must match — regressions in
// the codec show up as a diff against these committed fixtures rather than
// only as a passing/failing bool.
var goldenCases = map[string]func() any{
	"globalref": func() any {
		return &GlobalRef{Module: &Module{RootName: "App"}, Name: "counter"}
	},
	"module": func() any {
		return &Module{RootName: "App", Path: []string{"Sub", "Deep"}}
	},
	"tuple": func() any {
		return &Tuple{Elems: []any{int64(1), "hi", true}}
	},
}

func TestGoldenFixtures(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no golden fixtures found under testdata")
	}
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".txtar")
		t.Run(name, func(t *testing.T) {
			build, ok := goldenCases[name]
			if !ok {
				t.Fatalf("no goldenCases entry registered for fixture %q", name)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			ar := txtar.Parse(data)
			var want string
			for _, f := range ar.Files {
				if f.Name == "want.txt" {
					want = strings.TrimSpace(string(f.Data))
				}
			}
			if want == "" {
				t.Fatalf("fixture %q has no want.txt section", name)
			}
			got := roundTrip(t, nil, build())
			if desc := describeValue(got); desc != want {
				t.Errorf("decoded value = %q, want %q", desc, want)
			}
		})
	}
}
