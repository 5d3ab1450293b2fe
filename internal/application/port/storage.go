package port

import "context"

// ArtifactStore persists generated artifacts such as audit workbooks.
// Names are relative to the store's root.
type ArtifactStore interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
	Exists(ctx context.Context, name string) bool
}
