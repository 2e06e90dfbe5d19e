// Package content computes the identifiers everything else keys on:
// streamed SHA-256 content hashes and collision-checked short UUIDs.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// ShortLen is the prefix length used in paths and filenames.
const ShortLen = 8

// maxIDDraws bounds the re-draw loop in NewID. A draw collides with
// probability ~1/4.3B, so hitting the cap means something is broken
// and must surface as an error, not a hang.
const maxIDDraws = 100

var ErrRetriesExhausted = errors.New("id retries exhausted")

// HashFile returns the lowercase hex SHA-256 of the file at path and its
// size. The file is read in fixed-size chunks; ctx is checked between
// reads so arbitrarily large files stay cancellable.
func HashFile(ctx context.Context, path string) (sum string, size int64, err error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		default:
		}
		nr, er := f.Read(buf)
		if nr > 0 {
			size += int64(nr)
			h.Write(buf[:nr])
		}
		if er != nil {
			if er != io.EOF {
				return "", 0, er
			}
			break
		}
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// Short returns the first n characters of id, or id itself when shorter.
func Short(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// NewID draws random UUIDs from rnd until the ShortLen prefix does not
// collide according to exists, and returns the full 36-char id. After
// maxIDDraws collisions it gives up with ErrRetriesExhausted.
func NewID(rnd io.Reader, exists func(prefix string) (bool, error)) (string, error) {
	for i := 0; i < maxIDDraws; i++ {
		u, err := uuid.NewRandomFromReader(rnd)
		if err != nil {
			return "", fmt.Errorf("uuid draw error: %w", err)
		}
		id := u.String()
		ok, err := exists(Short(id, ShortLen))
		if err != nil {
			return "", fmt.Errorf("id prefix check error: %w", err)
		}
		if !ok {
			return id, nil
		}
	}
	return "", ErrRetriesExhausted
}
