package translate

import (
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/target"
)

// ModelEntry is one element of the /models listing.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /models response body.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// NewModelList never returns a nil Data slice.
func NewModelList(entries []ModelEntry) ModelList {
	if entries == nil {
		entries = []ModelEntry{}
	}
	return ModelList{Object: "list", Data: entries}
}

// ModelEntries projects resources of one target kind into listing entries.
func ModelEntries(kind target.Kind, objects []resource.Object, ownedBy string) []ModelEntry {
	entries := make([]ModelEntry, 0, len(objects))
	for i := range objects {
		meta := objects[i].Metadata
		entries = append(entries, ModelEntry{
			ID:      target.Target{Kind: kind, Name: meta.Name}.String(),
			Object:  "model",
			Created: CreatedAt(meta).Unix(),
			OwnedBy: ownedBy,
		})
	}
	return entries
}
