package ext2

import "encoding/binary"

// dirEntryHeaderSize is the fixed portion of a directory entry: inode
// number, record length, name length, and file-type byte.
const dirEntryHeaderSize = 8

// maxNameLen is the longest name an ext2 directory entry can hold.
const maxNameLen = 255

// DirEntry is one entry from a directory's linked list: a name, the
// inode it names, and that inode's type.
type DirEntry struct {
	Inode uint32
	Name  string
	Type  FileFormat
}

// DirIterator walks a directory's entries in on-disk order. It buffers
// the directory's full contents at construction (directories are rarely
// more than a handful of blocks) and is restartable: Rewind returns to
// the first entry without re-reading the device.
//
// A DirIterator is forward-only. Callers consume it front-to-back with
// Next; Rewind is the only way back to the start.
type DirIterator struct {
	v      *Volume
	data   []byte
	offset int
}

// openDirIterator reads dirInode's full data and returns an iterator
// over its entries. dirInode must be a directory.
func (v *Volume) openDirIterator(dirInode *Inode) (*DirIterator, error) {
	size := dirInode.Size()
	data := make([]byte, size)
	if size > 0 {
		if _, err := readInodeData(v.dev, v.sb, dirInode, data, 0); err != nil {
			return nil, err
		}
	}
	return &DirIterator{v: v, data: data}, nil
}

// Rewind resets the iterator to the first entry.
func (it *DirIterator) Rewind() {
	it.offset = 0
}

// Next returns the next entry, or ok == false when the directory is
// exhausted. Deleted entries (inode number zero) are skipped
// transparently. A corrupt record length, whether zero, shorter than
// the entry header, or overrunning the directory's data, terminates
// iteration as if the directory ended there: the rest of the block is
// unreadable, and reporting end-of-directory beats looping forever or
// failing a whole listing over one bad entry.
func (it *DirIterator) Next() (DirEntry, bool, error) {
	if cerr := it.v.checkOpen("DirIterator.Next"); cerr != nil {
		return DirEntry{}, false, cerr
	}
	for it.offset+dirEntryHeaderSize <= len(it.data) {
		hdr := it.data[it.offset:]
		inodeNum := binary.LittleEndian.Uint32(hdr[0:])
		recLen := binary.LittleEndian.Uint16(hdr[4:])
		nameLen := int(hdr[6])
		fileType := hdr[7]

		if recLen == 0 {
			return DirEntry{}, false, nil
		}
		if int(recLen) < dirEntryHeaderSize || it.offset+int(recLen) > len(it.data) {
			return DirEntry{}, false, nil
		}

		next := it.offset + int(recLen)
		if inodeNum == 0 {
			it.offset = next
			continue
		}

		// Clamp to the smallest of the declared name length, the
		// driver-wide maximum, and what actually fits before rec_len
		// ends the entry: a corrupt name_len must never read past the
		// entry it came from.
		n := nameLen
		if n > maxNameLen {
			n = maxNameLen
		}
		if fit := int(recLen) - dirEntryHeaderSize; n > fit {
			n = fit
		}
		name := string(it.data[it.offset+dirEntryHeaderSize : it.offset+dirEntryHeaderSize+n])

		typ, terr := it.v.classifyEntry(inodeNum, fileType)
		if terr != nil {
			return DirEntry{}, false, terr
		}

		it.offset = next
		return DirEntry{Inode: inodeNum, Name: name, Type: typ}, true, nil
	}
	return DirEntry{}, false, nil
}

// classifyEntry resolves a directory entry's file type. Revision-1
// volumes store the type redundantly in the entry itself; this driver
// trusts that byte whenever it's present, since incompat features
// (including the one that would make the byte mean something else) are
// refused at mount time, so a nonzero revision always means "file-type
// byte is meaningful." Revision-0 volumes carry no such byte, so the
// type is read from the referenced inode's mode field instead.
func (v *Volume) classifyEntry(inodeNum uint32, fileType byte) (FileFormat, error) {
	if v.sb.RevLevel >= 1 {
		switch fileType {
		case 1:
			return FormatRegular, nil
		case 2:
			return FormatDirectory, nil
		case 3:
			return FormatCharDevice, nil
		case 4:
			return FormatBlockDevice, nil
		case 5:
			return FormatFIFO, nil
		case 6:
			return FormatSocket, nil
		case 7:
			return FormatSymlink, nil
		}
	}
	inode, err := v.readInode(inodeNum)
	if err != nil {
		return 0, err
	}
	return inode.Format(), nil
}

// findDirectoryEntry scans dirInode's entries for name, returning its
// inode number. found is false, with a nil error, when the directory is
// well-formed but contains no such entry.
func (v *Volume) findDirectoryEntry(dirIno uint32, dirInode *Inode, name string) (uint32, bool, error) {
	it, ierr := v.openDirIterator(dirInode)
	if ierr != nil {
		return 0, false, ierr
	}
	for {
		entry, ok, nerr := it.Next()
		if nerr != nil {
			return 0, false, nerr
		}
		if !ok {
			return 0, false, nil
		}
		if entry.Name == name {
			return entry.Inode, true, nil
		}
	}
}
