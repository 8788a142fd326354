// Package remote defines the document store shared across devices.
//
// Documents are opaque serialized profile documents addressed by path. The
// store replaces whole documents; it has no notion of partial updates.
package remote

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("remote document not found")

// Ports for outbound adapters.
type (
	Writer interface {
		// Write replaces the document at path.
		Write(ctx context.Context, path string, doc []byte) error
	}

	Deleter interface {
		Delete(ctx context.Context, path string) error
	}

	Reader interface {
		// Read returns the document at path or ErrNotFound.
		Read(ctx context.Context, path string) ([]byte, error)
	}

	// Subscriber streams full-document replacements of path. The current
	// document, when one exists, is delivered first. Every later write is
	// delivered too, including writes made by this process. The channel is
	// closed when ctx is done.
	Subscriber interface {
		Subscribe(ctx context.Context, path string) (<-chan []byte, error)
	}

	Store interface {
		Writer
		Deleter
		Reader
		Subscriber
	}
)

// ProfilePath is where the document of profileID lives.
func ProfilePath(profileID string) string {
	return "profiles/" + profileID
}
