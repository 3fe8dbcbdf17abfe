// Package storage defines the memory store file-system abstraction.
package storage

// MutateFunc computes the next content of a document from its current
// content. exists is false when the document is absent.
type MutateFunc func(current []byte, exists bool) ([]byte, error)

// Outcome describes how a mutation went beyond success or failure.
type Outcome struct {
	// Contended is set when the store lock could not be taken and the
	// write proceeded without it.
	Contended bool
}

// Stamp is a modification fingerprint of a single document. The zero
// value stands for an absent document.
type Stamp struct {
	ModTime int64
	Size    int64
}

// Provider is the interface for memory store operations.
type Provider interface {
	// Root returns the absolute store root.
	Root() string
	// Read returns the content of a document. ok is false when the
	// document is absent or is not a regular file.
	Read(name string) (data []byte, ok bool, err error)
	// Stat returns the modification fingerprint of a document.
	Stat(name string) (Stamp, error)
	// Update runs a locked read-modify-write with an atomic replace.
	Update(name string, fn MutateFunc) (Outcome, error)
	// Write atomically replaces a document.
	Write(name string, content []byte) (Outcome, error)
	// Append atomically appends to a document.
	Append(name string, content []byte) (Outcome, error)
}
