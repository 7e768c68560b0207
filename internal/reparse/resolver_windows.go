//go:build windows

package reparse

import (
	"errors"
	"io/fs"
	"syscall"

	"golang.org/x/sys/windows"

	"dirmover/internal/errs"
)

func resolve(path string) (string, error) {
	buf, err := readBuffer(path)
	if err != nil {
		return "", err
	}
	return Parse(buf)
}

// readBuffer opens path without following it and fetches its reparse data.
func readBuffer(path string) ([]byte, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, errs.IO(err, path)
	}

	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		// backup semantics is required to open directories
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
	if err != nil {
		return nil, errs.IO(err, path)
	}
	defer windows.CloseHandle(handle)

	buf := make([]byte, windows.MAXIMUM_REPARSE_DATA_BUFFER_SIZE)
	var returned uint32
	err = windows.DeviceIoControl(handle, windows.FSCTL_GET_REPARSE_POINT,
		nil, 0, &buf[0], uint32(len(buf)), &returned, nil)
	if err != nil {
		if errors.Is(err, windows.ERROR_NOT_A_REPARSE_POINT) {
			return nil, errs.New(errs.KindNotAReparsePoint, path, "not a reparse point")
		}
		return nil, errs.IO(err, path)
	}
	return buf[:returned], nil
}

func isReparsePoint(info fs.FileInfo) bool {
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return data.FileAttributes&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0
	}
	return info.Mode()&fs.ModeSymlink != 0
}

func isLink(path string, info fs.FileInfo) bool {
	if info.Mode()&fs.ModeSymlink != 0 {
		return true
	}
	buf, err := readBuffer(path)
	if err != nil {
		return false
	}
	h, err := ParseHeader(buf)
	return err == nil && IsLinkTag(h.Tag)
}
