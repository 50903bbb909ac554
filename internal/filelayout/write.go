package filelayout

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// WriteFileAtomic streams r into a randomly named spool file in dir while
// hashing the content with blake3, renames the spool file to a
// content-hashed temp name in the same directory, then renames that into
// dir/finalName. A crash mid-write leaves only the stray temp file
// behind — never a half-written finalName — and each rename is a
// same-filesystem atomic operation.
//
// Returns the number of bytes written.
func WriteFileAtomic(dir, finalName string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir %s: %w", dir, err)
	}

	hasher := blake3.New()
	spool, err := os.CreateTemp(dir, ".upload-*.spool")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	spoolName := spool.Name()
	defer os.Remove(spoolName) // no-op once renamed away

	n, err := io.Copy(io.MultiWriter(spool, hasher), r)
	if err != nil {
		spool.Close()
		return 0, fmt.Errorf("write upload: %w", err)
	}
	if err := spool.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	// Rename to a content-hashed name first, then into the caller-chosen
	// final name; both renames are same-filesystem and atomic. Two
	// concurrent uploads of identical content into the same directory share
	// this content-hashed name, so one of their final renames can fail.
	contentTmp := filepath.Join(dir, ".upload-"+hex.EncodeToString(hasher.Sum(nil))+".tmp")
	if err := os.Rename(spoolName, contentTmp); err != nil {
		return 0, fmt.Errorf("stage content-addressed temp file: %w", err)
	}
	defer os.Remove(contentTmp)

	finalPath := filepath.Join(dir, finalName)
	if err := os.Rename(contentTmp, finalPath); err != nil {
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}

// DirSizeBytes recursively sums the size of every regular file under dir.
// Returns 0, nil if dir does not exist.
func DirSizeBytes(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}
