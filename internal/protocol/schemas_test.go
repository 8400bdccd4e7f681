package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/grid"
	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func asAny(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ExportedContainersValidate(t *testing.T) {
	worldSchema := compile(t, "world.schema.json")

	terrain := grid.New("terrain", 24, 24, "#1e90ff")
	terrain.FillRect(2, 2, 10, 10, "#e3c16f")
	terrain.FillRect(12, 12, 20, 20, "#2e8b57")
	structures := grid.New("structures", 24, 24, "")
	structures.Set(5, 5, "tower")
	c, err := world.Export(world.Metadata{Name: "plains", WorldSize: 24, Seed: 7}, []grid.Layer{terrain, structures}, world.ExportOptions{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	for _, shape := range []blocks.Shape{blocks.ShapeBase64, blocks.ShapeIndexed, blocks.ShapeLiteral} {
		conv, err := world.Convert(c, shape)
		if err != nil {
			t.Fatalf("Convert(%v): %v", shape, err)
		}
		if err := worldSchema.Validate(asAny(t, conv)); err != nil {
			t.Fatalf("%v container: %v", shape, err)
		}
	}

	var broken any
	_ = json.Unmarshal([]byte(`{"metadata":{},"layers":[{"layer_type":"t","palette":["a"],"data_b64":"AQ==","color_data":[]}]}`), &broken)
	if err := worldSchema.Validate(broken); err == nil {
		t.Fatalf("expected block with both data_b64 and color_data to be rejected")
	}
}

func TestSchemas_ValidateMessages(t *testing.T) {
	validate := func(schema string, v any) {
		t.Helper()
		if err := compile(t, schema).Validate(asAny(t, v)); err != nil {
			t.Fatalf("%s: %v", schema, err)
		}
	}
	digest := strings.Repeat("ab", 32)
	doc := json.RawMessage(`{"metadata":{"name":"m","world_size":4},"layers":[{"layer_type":"terrain","color_data":[{"color":"#fff","count":16}]}]}`)

	validate("save_level.schema.json", protocol.SaveLevelMsg{Type: protocol.TypeSaveLevel, ProtocolVersion: protocol.Version, ReqID: "r1", World: doc})
	validate("saved.schema.json", protocol.SavedMsg{Type: protocol.TypeSaved, ProtocolVersion: protocol.Version, Name: "m", Digest: digest, Layers: 1})
	validate("load_level.schema.json", protocol.LoadLevelMsg{Type: protocol.TypeLoadLevel, ProtocolVersion: protocol.Version, Name: "m"})
	validate("level.schema.json", protocol.LevelMsg{Type: protocol.TypeLevel, ProtocolVersion: protocol.Version, Digest: digest, World: doc})
	validate("list_levels.schema.json", protocol.ListLevelsMsg{Type: protocol.TypeListLevels, ProtocolVersion: protocol.Version, Limit: 10})
	validate("levels.schema.json", protocol.LevelsMsg{
		Type:            protocol.TypeLevels,
		ProtocolVersion: protocol.Version,
		Levels:          []protocol.LevelSummary{{Name: "m", Digest: digest, Layers: 1}},
	})
	validate("error.schema.json", protocol.NewError("r1", protocol.ErrTruncated, "truncated"))

	if err := compile(t, "error.schema.json").Validate(asAny(t, protocol.NewError("", "E_WHATEVER", "x"))); err == nil {
		t.Fatalf("expected unknown error code to be rejected")
	}
}
