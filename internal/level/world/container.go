// Package world assembles layer blocks into the exportable world container
// and installs decoded layers back into a layer set.
package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"biomelevel.ai/internal/level/blocks"
)

// FormatVersion is written by Export. 1 = literal runs, 2 = indexed runs,
// 3 = tag-byte base64 runs with indexed fallback.
const FormatVersion = 3

type Metadata struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	WorldSize     int    `json:"world_size"`
	Seed          int64  `json:"maze_generation_seed"`
	FormatVersion int    `json:"format_version"`
}

type Container struct {
	Metadata Metadata
	Layers   []blocks.Block
}

type containerJSON struct {
	Metadata Metadata       `json:"metadata"`
	Layers   []blocks.Block `json:"layers"`
}

type containerWire struct {
	Metadata Metadata          `json:"metadata"`
	Layers   []json.RawMessage `json:"layers"`
}

func (c Container) MarshalJSON() ([]byte, error) {
	layers := c.Layers
	if layers == nil {
		layers = []blocks.Block{}
	}
	return json.Marshal(containerJSON{Metadata: c.Metadata, Layers: layers})
}

func (c *Container) UnmarshalJSON(b []byte) error {
	var w containerWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("world container: %w", err)
	}
	layers := make([]blocks.Block, 0, len(w.Layers))
	for i, raw := range w.Layers {
		blk, err := blocks.Sniff(raw)
		if err != nil {
			return fmt.Errorf("world container: layers[%d]: %w", i, err)
		}
		layers = append(layers, blk)
	}
	c.Metadata = w.Metadata
	c.Layers = layers
	return nil
}

// Digest is the hex sha256 of the container's JSON encoding.
func Digest(c *Container) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
