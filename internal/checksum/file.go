package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"dirmover/internal/fs"
)

// File returns the hex MD5 of the file at path.
func File(fsys fs.FileSystem, path string) (string, error) {
	f, err := fsys.OpenStream(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify compares the digest of path against want.
func Verify(fsys fs.FileSystem, path, want string) error {
	got, err := File(fsys, path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", path, got, want)
	}
	return nil
}
