package ext2

import "time"

// StatRecord is a platform-agnostic projection of an inode, returned by
// Stat. It deliberately doesn't mirror syscall.Stat_t: this driver runs
// wherever Go runs, not just on POSIX, so it only exposes fields that
// exist in the on-disk inode and superblock.
type StatRecord struct {
	Inode      uint32
	Mode       uint16
	Type       FileFormat
	LinksCount uint16
	UID        uint16
	GID        uint16
	Size       uint64
	BlockSize  uint32
	Blocks512  uint32 // i_blocks: 512-byte sectors allocated to the file
	AccessTime time.Time
	ModTime    time.Time
	ChangeTime time.Time
}

// Stat resolves path and returns a snapshot of the inode it names.
// Reading a file's metadata updates its access time, which is written
// back to the device before the snapshot is returned; if the write-back
// fails the snapshot is discarded and Stat reports the failure.
func (v *Volume) Stat(path string) (StatRecord, error) {
	return v.StatFrom(path, "")
}

// StatFrom is Stat with an explicit origin, per the same resolution
// rules as OpenDirectoryFrom.
func (v *Volume) StatFrom(path, originPath string) (StatRecord, error) {
	if cerr := v.checkOpen("Stat"); cerr != nil {
		return StatRecord{}, cerr
	}
	ino, inode, rerr := v.Resolve(path, originPath)
	if rerr != nil {
		return StatRecord{}, rerr
	}

	now := time.Now().Unix()
	inode.ATime = uint32(now)

	rec := StatRecord{
		Inode:      ino,
		Mode:       inode.Mode,
		Type:       inode.Format(),
		LinksCount: inode.LinksCount,
		UID:        inode.UID,
		GID:        inode.GID,
		Size:       inode.Size(),
		BlockSize:  v.sb.BlockSize(),
		Blocks512:  inode.Blocks,
		AccessTime: time.Unix(now, 0).UTC(),
		ModTime:    time.Unix(int64(inode.MTime), 0).UTC(),
		ChangeTime: time.Unix(int64(inode.CTime), 0).UTC(),
	}

	if werr := v.writeBackInode(ino, inode); werr != nil {
		v.log.WithError(werr).WithField("path", path).Warn("ext2: failed to write back access time")
		return StatRecord{}, err("Stat", path, KindIoFailure, werr)
	}

	return rec, nil
}

// writeBackInode writes inode's current in-memory contents to its
// on-disk record.
func (v *Volume) writeBackInode(ino uint32, inode *Inode) error {
	group := inodeGroup(v.sb, ino)
	off := computeInodeOffset(v.sb, v.gds[group], ino)
	buf := make([]byte, v.sb.effectiveInodeSize())
	inode.marshal(buf)
	_, werr := v.dev.WriteAt(buf, int64(off))
	return werr
}
