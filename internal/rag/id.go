package rag

import (
	"fmt"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk IDs so they never collide with UUIDs minted
// for other purposes.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/ragdemo-go/chunk"))

// ChunkID returns the deterministic ID of the chunk starting at startIndex
// inside the document identified by meta. Rebuilding the same corpus yields
// the same IDs, which keeps Qdrant point IDs stable across builds.
func ChunkID(meta Metadata, startIndex int) string {
	name := fmt.Sprintf("%s#%d#%d", meta.Source, meta.Page, startIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
