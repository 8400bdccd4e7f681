package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/grid"
	"biomelevel.ai/internal/level/world"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	WorldSize    int         `yaml:"world_size"`
	MaxWorldSize int         `yaml:"max_world_size"`
	Layers       []LayerSpec `yaml:"layers"`

	Export  ExportSpec  `yaml:"export"`
	Storage StorageSpec `yaml:"storage"`
	Server  ServerSpec  `yaml:"server"`
}

// LayerSpec names a layer and the value its unset cells take.
type LayerSpec struct {
	Type    string `yaml:"type"`
	Default string `yaml:"default"`
}

type ExportSpec struct {
	Shape       string `yaml:"shape"` // auto | rle-base64 | indexed | literal
	Strict      bool   `yaml:"strict"`
	Parallelism int    `yaml:"parallelism"`
}

type StorageSpec struct {
	KeepRevisions int        `yaml:"keep_revisions"`
	DisableIndex  bool       `yaml:"disable_index"`
	Mirror        MirrorSpec `yaml:"mirror"`
}

// MirrorSpec configures the S3-compatible copy of saved levels. Credentials
// come from LEVELS_MIRROR_ACCESS_KEY_ID and LEVELS_MIRROR_SECRET_ACCESS_KEY.
type MirrorSpec struct {
	Endpoint string `yaml:"endpoint"` // empty disables mirroring
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Workers  int    `yaml:"workers"`
	Queue    int    `yaml:"queue"`
}

type ServerSpec struct {
	MaxMessageBytes  int64 `yaml:"max_message_bytes"`
	ReadTimeoutSecs  int   `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int   `yaml:"write_timeout_secs"`
	MaxListLimit     int   `yaml:"max_list_limit"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		WorldSize:       256,
		MaxWorldSize:    1024,
		Layers: []LayerSpec{
			{Type: "terrain", Default: "#1e90ff"},
			{Type: "structures", Default: ""},
			{Type: "height", Default: "0"},
			{Type: "hazard", Default: "none"},
		},
		Export: ExportSpec{
			Shape:       "auto",
			Parallelism: 4,
		},
		Storage: StorageSpec{
			KeepRevisions: 10,
			Mirror: MirrorSpec{
				Region:  "auto",
				Prefix:  "biomelevel",
				Workers: 2,
				Queue:   256,
			},
		},
		Server: ServerSpec{
			MaxMessageBytes:  64 << 20,
			ReadTimeoutSecs:  60,
			WriteTimeoutSecs: 10,
			MaxListLimit:     200,
		},
	}
}

// Load overlays the YAML file at path on Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("levels.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("levels.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.MaxWorldSize <= 0 {
		t.MaxWorldSize = d.MaxWorldSize
	}
	for i := range t.Layers {
		t.Layers[i].Type = strings.TrimSpace(t.Layers[i].Type)
	}
	t.Export.Shape = strings.ToLower(strings.TrimSpace(t.Export.Shape))
	if t.Export.Shape == "" {
		t.Export.Shape = "auto"
	}
	m := &t.Storage.Mirror
	m.Endpoint = strings.TrimSpace(m.Endpoint)
	m.Bucket = strings.TrimSpace(m.Bucket)
	if m.Region == "" {
		m.Region = d.Storage.Mirror.Region
	}
	if m.Workers <= 0 {
		m.Workers = d.Storage.Mirror.Workers
	}
	if m.Queue <= 0 {
		m.Queue = d.Storage.Mirror.Queue
	}
	if t.Server.MaxMessageBytes <= 0 {
		t.Server.MaxMessageBytes = d.Server.MaxMessageBytes
	}
	if t.Server.ReadTimeoutSecs <= 0 {
		t.Server.ReadTimeoutSecs = d.Server.ReadTimeoutSecs
	}
	if t.Server.WriteTimeoutSecs <= 0 {
		t.Server.WriteTimeoutSecs = d.Server.WriteTimeoutSecs
	}
	if t.Server.MaxListLimit <= 0 {
		t.Server.MaxListLimit = d.Server.MaxListLimit
	}
}

func (t Tuning) Validate() error {
	if t.WorldSize <= 0 || t.WorldSize > t.MaxWorldSize {
		return fmt.Errorf("world_size %d outside (0, %d]", t.WorldSize, t.MaxWorldSize)
	}
	if len(t.Layers) == 0 {
		return fmt.Errorf("no layers configured")
	}
	seen := map[string]bool{}
	for _, l := range t.Layers {
		if l.Type == "" {
			return fmt.Errorf("layer with empty type")
		}
		if seen[l.Type] {
			return fmt.Errorf("duplicate layer type %q", l.Type)
		}
		seen[l.Type] = true
	}
	if _, err := t.ExportShape(); err != nil {
		return err
	}
	if t.Storage.KeepRevisions < 0 {
		return fmt.Errorf("storage.keep_revisions must be >= 0")
	}
	if t.Storage.Mirror.Endpoint != "" && t.Storage.Mirror.Bucket == "" {
		return fmt.Errorf("storage.mirror.bucket is required when endpoint is set")
	}
	return nil
}

// ExportShape maps export.shape to a block shape; "auto" is zero.
func (t Tuning) ExportShape() (blocks.Shape, error) {
	switch t.Export.Shape {
	case "", "auto":
		return 0, nil
	case "rle-base64", blocks.EncodingRLEBase64V1:
		return blocks.ShapeBase64, nil
	case "indexed":
		return blocks.ShapeIndexed, nil
	case "literal":
		return blocks.ShapeLiteral, nil
	default:
		return 0, fmt.Errorf("export.shape %q: want auto, rle-base64, indexed or literal", t.Export.Shape)
	}
}

func (t Tuning) ExportOptions() world.ExportOptions {
	shape, _ := t.ExportShape()
	return world.ExportOptions{Shape: shape, Strict: t.Export.Strict, Parallelism: t.Export.Parallelism}
}

// NewStack builds empty target layers of size x size for every configured layer.
func (t Tuning) NewStack(size int) *grid.Stack {
	s := grid.NewStack()
	for _, l := range t.Layers {
		s.Add(grid.New(l.Type, size, size, l.Default))
	}
	return s
}
