// Package ext2 implements a read-mostly user-space driver for the ext2
// on-disk filesystem format, revisions 0 and 1. It mounts a volume from any
// io.ReaderAt+io.WriterAt+io.Closer, resolves paths to inodes, reads file
// and directory contents, and stats files.
//
// The package refuses to mount any volume that advertises an incompat or
// ro_compat feature bit; only the revision-0 baseline and the revision-1
// typed-directory-entry extension are supported. Filesystem creation,
// allocation, journaling, extended attributes, and repair are out of scope.
package ext2

import "io"

// Device is what a Volume mounts against: a block device or disk image
// opened for random access. internal/device.File implements it against a
// real file; tests implement it against an in-memory buffer.
type Device interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}
