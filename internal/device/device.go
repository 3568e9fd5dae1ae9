// Package device implements the raw block-device adapter the ext2 core
// mounts against: open the image read-write, and do seek-then-read-or-
// write-fully, retrying on interrupted or would-block syscalls.
//
// This is deliberately the only place in the module that talks to the
// kernel directly. The core package never sees a file descriptor, only the
// File type's ReadAt/WriteAt/Close methods.
package device

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a block device or disk image opened for random access. It
// performs a seek followed by a full read or write on every call, retrying
// when the underlying syscall is interrupted (EINTR) or would block
// (EAGAIN), and reports a short transfer as an error, returned together
// with the partial count.
//
// File is not safe for concurrent use: a seek followed by a read or write
// is two syscalls, not one, so an interleaved caller would race on the
// file's cursor. Serializing access is left to the caller, matching the
// single-reader/single-writer model this package implements against.
type File struct {
	f  *os.File
	fd int
}

// Open opens path for reading and writing.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening device %q: %w", path, err)
	}
	return &File{f: f, fd: int(f.Fd())}, nil
}

// ReadAt reads exactly len(p) bytes starting at off, or returns an error.
func (d *File) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := seek(d.fd, off); err != nil {
		return 0, fmt.Errorf("seeking to %d: %w", off, err)
	}
	n, err := readFull(d.fd, p)
	if err != nil {
		return n, fmt.Errorf("reading %d bytes at %d: %w", len(p), off, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("short read at %d: got %d of %d bytes", off, n, len(p))
	}
	return n, nil
}

// WriteAt writes exactly len(p) bytes starting at off, or returns an error.
func (d *File) WriteAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := seek(d.fd, off); err != nil {
		return 0, fmt.Errorf("seeking to %d: %w", off, err)
	}
	n, err := writeFull(d.fd, p)
	if err != nil {
		return n, fmt.Errorf("writing %d bytes at %d: %w", len(p), off, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("short write at %d: wrote %d of %d bytes", off, n, len(p))
	}
	return n, nil
}

// Close closes the underlying device handle.
func (d *File) Close() error {
	return d.f.Close()
}

func seek(fd int, off int64) error {
	_, err := unix.Seek(fd, off, unix.SEEK_SET)
	return err
}

// readFull mirrors the original driver's ReadReentrant: loop on short
// transfers, retry on EINTR/EAGAIN, stop on EOF (a zero-byte read) or any
// other error.
func readFull(fd int, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Read(fd, p[total:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
	return total, nil
}

// writeFull mirrors the original driver's WriteReentrant.
func writeFull(fd int, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(fd, p[total:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
	return total, nil
}
