//go:build !windows

package reparse

import (
	"io/fs"
	"os"

	"dirmover/internal/errs"
)

// Outside Windows the only redirecting object is a symbolic link, so the
// link-target query stands in for the reparse ioctl.
func resolve(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", errs.IO(err, path)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return "", errs.New(errs.KindNotAReparsePoint, path, "not a reparse point")
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", errs.IO(err, path)
	}
	return target, nil
}

func isReparsePoint(info fs.FileInfo) bool {
	return info.Mode()&fs.ModeSymlink != 0
}

// symbolic links are the only reparse points here
func isLink(string, fs.FileInfo) bool {
	return true
}
