package incoming

import (
	"fmt"
	"sync"

	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

// PayloadCollector tracks which manifest-declared parts a session has
// actually received. Acceptance validates against the manifest; Finalize
// asks AssertComplete before anything is committed or queued.
type PayloadCollector struct {
	mu sync.Mutex

	declaredPayloads   map[string]struct{}
	declaredThumbnails map[string]struct{}

	acceptedPayloads   map[string]struct{}
	acceptedThumbnails map[string]struct{}
}

// NewPayloadCollector builds a collector for the manifest's declared parts.
func NewPayloadCollector(manifest peer.UploadManifest) *PayloadCollector {
	c := &PayloadCollector{
		declaredPayloads:   make(map[string]struct{}),
		declaredThumbnails: make(map[string]struct{}),
		acceptedPayloads:   make(map[string]struct{}),
		acceptedThumbnails: make(map[string]struct{}),
	}
	for _, p := range manifest.PayloadDescriptors {
		c.declaredPayloads[p.Key] = struct{}{}
		for _, t := range p.Thumbnails {
			c.declaredThumbnails[t.TransitKey(p.Key)] = struct{}{}
		}
	}
	return c
}

// AcceptPayload records receipt of a payload part.
func (c *PayloadCollector) AcceptPayload(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.declaredPayloads[key]; !ok {
		return faults.Client(faults.CodeCorruptTransfer,
			fmt.Sprintf("payload %s is not declared in the manifest", key))
	}
	if _, ok := c.acceptedPayloads[key]; ok {
		return faults.Client(faults.CodeDuplicatePart,
			fmt.Sprintf("payload %s was already uploaded in this session", key))
	}
	c.acceptedPayloads[key] = struct{}{}
	return nil
}

// AcceptThumbnail records receipt of a thumbnail part by its transit key.
func (c *PayloadCollector) AcceptThumbnail(transitKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.declaredThumbnails[transitKey]; !ok {
		return faults.Client(faults.CodeCorruptTransfer,
			fmt.Sprintf("thumbnail %s is not declared in the manifest", transitKey))
	}
	if _, ok := c.acceptedThumbnails[transitKey]; ok {
		return faults.Client(faults.CodeDuplicatePart,
			fmt.Sprintf("thumbnail %s was already uploaded in this session", transitKey))
	}
	c.acceptedThumbnails[transitKey] = struct{}{}
	return nil
}

// AssertComplete fails when any manifest-declared payload or thumbnail was
// never received.
func (c *PayloadCollector) AssertComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.declaredPayloads {
		if _, ok := c.acceptedPayloads[key]; !ok {
			return faults.Client(faults.CodeIncompleteUpload,
				fmt.Sprintf("payload %s was declared but never uploaded", key))
		}
	}
	for key := range c.declaredThumbnails {
		if _, ok := c.acceptedThumbnails[key]; !ok {
			return faults.Client(faults.CodeIncompleteUpload,
				fmt.Sprintf("thumbnail %s was declared but never uploaded", key))
		}
	}
	return nil
}
