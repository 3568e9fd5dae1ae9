// Package cmd implements the ext2cat command-line subcommands: ls, cat,
// and stat, all built on top of an already-mounted *ext2.Volume.
package cmd

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Sirraide/ext2"
)

// LsOptions controls ls behavior.
type LsOptions struct {
	Long bool // Long format (-l)
	All  bool // Show entries whose name starts with "." (-a)
}

// Ls lists the contents of a path on vol. If the path names a file, it
// shows that file's own information instead of a directory listing.
func Ls(vol *ext2.Volume, fsPath string, out io.Writer, opts LsOptions) error {
	fsPath = normalizePath(fsPath)

	rec, serr := vol.Stat(fsPath)
	if serr != nil {
		return serr
	}

	if rec.Type == ext2.FormatDirectory {
		return listDirectory(vol, fsPath, out, opts)
	}
	return printLongFormat(fsPath, rec, out, opts.Long)
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

func listDirectory(vol *ext2.Volume, dirPath string, out io.Writer, opts LsOptions) error {
	it, oerr := vol.OpenDirectory(dirPath)
	if oerr != nil {
		return oerr
	}

	for {
		entry, ok, nerr := it.Next()
		if nerr != nil {
			return nerr
		}
		if !ok {
			return nil
		}
		if !opts.All && strings.HasPrefix(entry.Name, ".") {
			continue
		}

		if opts.Long {
			childPath := path.Join(dirPath, entry.Name)
			rec, serr := vol.Stat(childPath)
			if serr != nil {
				fmt.Fprintf(out, "%10s %12s %s\n", "?????????", "?", entry.Name)
				continue
			}
			if werr := printLongFormat(entry.Name, rec, out, true); werr != nil {
				return werr
			}
			continue
		}

		name := entry.Name
		if entry.Type == ext2.FormatDirectory {
			name += "/"
		}
		fmt.Fprintln(out, name)
	}
}

func printLongFormat(name string, rec ext2.StatRecord, out io.Writer, long bool) error {
	if !long {
		_, werr := fmt.Fprintln(out, name)
		return werr
	}
	modTime := rec.ModTime.Format("Jan _2 15:04")
	_, werr := fmt.Fprintf(out, "%8d %s %12d %s %s\n", rec.Inode, typeLetter(rec.Type), rec.Size, modTime, name)
	return werr
}

func typeLetter(t ext2.FileFormat) string {
	switch t {
	case ext2.FormatDirectory:
		return "d"
	case ext2.FormatSymlink:
		return "l"
	case ext2.FormatCharDevice:
		return "c"
	case ext2.FormatBlockDevice:
		return "b"
	case ext2.FormatFIFO:
		return "p"
	case ext2.FormatSocket:
		return "s"
	default:
		return "-"
	}
}
