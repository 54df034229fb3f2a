package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const shredChunk = 4096

// ShredFile overwrites path with zeros, syncs it and removes it.
// A missing file is not an error.
func ShredFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open for shredding: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat for shredding: %w", err)
	}

	if err := overwrite(f, info.Size()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close shredded file: %w", err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove shredded file: %w", err)
	}
	return nil
}

func overwrite(f *os.File, size int64) error {
	zeros := make([]byte, shredChunk)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek for shredding: %w", err)
	}
	for remaining := size; remaining > 0; {
		n := int64(len(zeros))
		if remaining < n {
			n = remaining
		}
		if _, err := f.Write(zeros[:n]); err != nil {
			return fmt.Errorf("overwrite file: %w", err)
		}
		remaining -= n
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync shredded file: %w", err)
	}
	return nil
}
