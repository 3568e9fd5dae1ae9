package cmd

import (
	"fmt"
	"io"

	"github.com/Sirraide/ext2"
)

// Cat copies the contents of the file at fsPath to out, streaming it in
// fixed-size chunks rather than buffering the whole file.
func Cat(vol *ext2.Volume, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	rec, serr := vol.Stat(fsPath)
	if serr != nil {
		return serr
	}
	if rec.Type == ext2.FormatDirectory {
		return fmt.Errorf("%s: is a directory", fsPath)
	}

	return streamFile(vol, fsPath, int64(rec.Size), out)
}

// streamFile copies size bytes of the file at fsPath to out in fixed
// chunks, using Volume.ReadAt directly so an arbitrarily large file is
// never held in memory whole.
func streamFile(vol *ext2.Volume, fsPath string, size int64, out io.Writer) error {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)

	for off := int64(0); off < size; {
		toRead := int64(chunkSize)
		if off+toRead > size {
			toRead = size - off
		}

		n, rerr := vol.ReadAt(fsPath, buf[:toRead], off)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			off += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
	}
	return nil
}

// Stat shows detailed information about a file or directory.
func Stat(vol *ext2.Volume, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	rec, err := vol.Stat(fsPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  File: %s\n", fsPath)
	fmt.Fprintf(out, "  Size: %d\n", rec.Size)
	fmt.Fprintf(out, "  Type: %s\n", typeLetter(rec.Type))
	fmt.Fprintf(out, "  Mode: %#o\n", rec.Mode&0o7777)
	fmt.Fprintf(out, " Inode: %d\n", rec.Inode)
	fmt.Fprintf(out, " Links: %d\n", rec.LinksCount)
	fmt.Fprintf(out, "   Uid: %d   Gid: %d\n", rec.UID, rec.GID)
	fmt.Fprintf(out, "Access: %s\n", rec.AccessTime)
	fmt.Fprintf(out, "Modify: %s\n", rec.ModTime)
	fmt.Fprintf(out, "Change: %s\n", rec.ChangeTime)

	return nil
}
