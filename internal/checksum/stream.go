// Package checksum verifies that a copied file matches its source.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// Reader hashes everything read through it.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps src so the bytes it yields are digested on the way through.
func NewReader(src io.Reader) *Reader {
	return &Reader{r: src, h: md5.New()}
}

func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// Sum is the hex MD5 of the bytes read so far.
func (d *Reader) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Count is the number of bytes read so far.
func (d *Reader) Count() int64 {
	return d.n
}
