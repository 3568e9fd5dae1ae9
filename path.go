package ext2

import "strings"

// Resolve maps path to an inode number and its parsed inode record.
//
// If path begins with "/", it is resolved from the root inode and
// originPath is ignored. Otherwise originPath, if non-empty, must itself
// be an absolute path; it is resolved first, and path is then resolved
// relative to the inode it names. An empty originPath resolves relative
// to the root. A path of only slashes (or, once an absolute prefix is
// stripped, an empty remainder) resolves to its starting inode; in
// particular "/" resolves to the root.
func (v *Volume) Resolve(path, originPath string) (uint32, *Inode, error) {
	if path == "" {
		return 0, nil, err("Resolve", path, KindInvalidArgument, nil)
	}

	if strings.HasPrefix(path, "/") {
		return v.resolveFrom(rootInode, strings.TrimLeft(path, "/"))
	}

	origin := uint32(rootInode)
	if originPath != "" {
		if !strings.HasPrefix(originPath, "/") {
			return 0, nil, err("Resolve", originPath, KindInvalidArgument, nil)
		}
		oIno, _, operr := v.resolveFrom(rootInode, strings.TrimLeft(originPath, "/"))
		if operr != nil {
			return 0, nil, operr
		}
		origin = oIno
	}
	return v.resolveFrom(origin, path)
}

// resolveFrom walks path component by component starting from the
// directory named by origin. Resolution does not chase symlinks: a
// symlink encountered as an intermediate component, or as the final
// component, is returned as-is.
func (v *Volume) resolveFrom(origin uint32, path string) (uint32, *Inode, error) {
	ino := origin
	inode, rerr := v.readInode(ino)
	if rerr != nil {
		return 0, nil, rerr
	}

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		if !inode.Is(FormatDirectory) {
			return 0, nil, err("resolveFrom", path, KindNotADirectory, nil)
		}
		childIno, found, ferr := v.findDirectoryEntry(ino, inode, name)
		if ferr != nil {
			return 0, nil, ferr
		}
		if !found {
			return 0, nil, err("resolveFrom", path, KindNotFound, nil)
		}
		childInode, cerr := v.readInode(childIno)
		if cerr != nil {
			return 0, nil, cerr
		}
		ino, inode = childIno, childInode
	}

	// A trailing slash asserts the final component is a directory, the
	// same way a slash after an intermediate component does.
	if strings.HasSuffix(path, "/") && !inode.Is(FormatDirectory) {
		return 0, nil, err("resolveFrom", path, KindNotADirectory, nil)
	}
	return ino, inode, nil
}
