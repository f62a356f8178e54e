package store

import (
	"encoding/json"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// unmarshalChunkMetadata decodes a chunk's JSON metadata column into
// c.Metadata and the top-level convenience fields it feeds (page, image
// ref, page blocks). The source document pipeline may place fields either
// at the top level of the JSON object or nested under a "metadata" key;
// both shapes are tolerated on read (spec Design Notes §9).
func unmarshalChunkMetadata(raw []byte, c *model.Chunk) error {
	if len(raw) == 0 {
		return nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return fmt.Errorf("store.unmarshalChunkMetadata: %w", err)
	}

	// If a nested "metadata" object exists, its fields take precedence over
	// any same-named top-level field, since that is the shape ingestion
	// canonicalizes to.
	merged := top
	if nested, ok := top["metadata"]; ok {
		var nestedMap map[string]json.RawMessage
		if err := json.Unmarshal(nested, &nestedMap); err == nil {
			merged = make(map[string]json.RawMessage, len(top)+len(nestedMap))
			for k, v := range top {
				merged[k] = v
			}
			for k, v := range nestedMap {
				merged[k] = v
			}
		}
	}

	var meta model.ChunkMetadata
	if b, err := json.Marshal(merged); err == nil {
		_ = json.Unmarshal(b, &meta)
	}
	c.Metadata = meta

	if meta.ImageRef != nil {
		c.ImageRef = meta.ImageRef
	}
	if len(meta.PageBlocks) > 0 {
		c.PageBlocks = meta.PageBlocks
	}
	return nil
}
