package ext2

import (
	"sync/atomic"
	"time"

	"github.com/Sirraide/ext2/internal/device"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Volume is a mounted ext2 filesystem. It is not safe for concurrent
// use: every method eventually issues a seek-then-read-or-write against
// the underlying Device, and interleaving two such sequences from
// different goroutines would race on the device's cursor exactly as two
// interleaved syscalls would. Callers needing concurrent access must
// serialize it themselves.
type Volume struct {
	dev Device
	sb  *Superblock
	gds []GroupDescriptor

	closed atomic.Bool

	log *logrus.Entry
}

// Mount opens the device at path and mounts it as an ext2 volume.
func Mount(path string) (*Volume, error) {
	dev, derr := device.Open(path)
	if derr != nil {
		return nil, err("Mount", path, KindIoFailure, derr)
	}
	v, merr := MountDevice(dev)
	if merr != nil {
		dev.Close()
		return nil, merr
	}
	v.log = v.log.WithField("path", path)
	return v, nil
}

// MountDevice mounts an already-open Device as an ext2 volume. The
// volume takes ownership of dev: Close on the returned Volume closes it.
func MountDevice(dev Device) (*Volume, error) {
	log := logrus.WithField("component", "ext2")

	raw := make([]byte, superblockSize)
	if _, rerr := dev.ReadAt(raw, superblockOffset); rerr != nil {
		return nil, err("Mount", "", KindIoFailure, rerr)
	}
	sb, perr := parseSuperblock(raw)
	if perr != nil {
		return nil, err("Mount", "", KindIoFailure, perr)
	}

	if sb.Magic != extMagic {
		log.WithField("magic", sb.Magic).Warn("ext2: bad superblock magic")
		return nil, err("Mount", "", KindBadMagic, nil)
	}
	if sb.RevLevel >= 1 && (sb.FeatureIncompat != 0 || sb.FeatureROCompat != 0) {
		log.WithFields(logrus.Fields{
			"incompat":  sb.FeatureIncompat,
			"ro_compat": sb.FeatureROCompat,
		}).Warn("ext2: unsupported feature bits set")
		return nil, err("Mount", "", KindUnsupportedFeatures, nil)
	}
	if sb.State == StateHasErrors {
		log.Warn("ext2: filesystem marked dirty, refusing to mount")
		return nil, err("Mount", "", KindDirtyFilesystem, nil)
	}

	gds, gerr := readGroupDescriptors(dev, sb)
	if gerr != nil {
		return nil, err("Mount", "", KindIoFailure, gerr)
	}

	v := &Volume{dev: dev, sb: sb, gds: gds, log: log}

	// Mark the volume dirty in memory only; nothing is written to disk
	// until Close flushes it, by which time the state is back to Valid.
	// If the process dies before then, the on-disk state is whatever it
	// was at mount; HasErrors is never written to the device.
	sb.State = StateHasErrors
	sb.MountCount++
	sb.MTime = uint32(time.Now().Unix())

	log.WithFields(logrus.Fields{
		"blocks":      sb.BlocksCount,
		"block_size":  sb.BlockSize(),
		"rev_level":   sb.RevLevel,
		"mount_count": sb.MountCount,
	}).Info("ext2: mounted")

	return v, nil
}

// flushSuperblock writes the in-memory superblock back to the device.
// Failures here are reported to the caller but are not fatal to mount or
// unmount: this driver never depends on the write succeeding to keep
// serving reads.
func (v *Volume) flushSuperblock() error {
	_, werr := v.dev.WriteAt(v.sb.marshal(), superblockOffset)
	return werr
}

// Close unmounts the volume: it marks the superblock clean, flushes it
// best-effort, and closes the underlying device. Close is idempotent;
// calling it more than once returns ErrVolumeGone on the second and
// later calls.
func (v *Volume) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return err("Close", "", KindVolumeGone, nil)
	}
	v.sb.State = StateValid
	if werr := v.flushSuperblock(); werr != nil {
		v.log.WithError(werr).Warn("ext2: failed to flush superblock on unmount")
	}
	if cerr := v.dev.Close(); cerr != nil {
		return err("Close", "", KindIoFailure, cerr)
	}
	v.log.Info("ext2: unmounted")
	return nil
}

func (v *Volume) checkOpen(op string) error {
	if v.closed.Load() {
		return err(op, "", KindVolumeGone, nil)
	}
	return nil
}

// UUID returns the volume's revision-1 UUID, or the zero UUID on a
// revision-0 volume.
func (v *Volume) UUID() uuid.UUID { return v.sb.UUID }

// VolumeName returns the volume's revision-1 name, or "" on a
// revision-0 volume.
func (v *Volume) VolumeName() string { return v.sb.VolumeName }

// LastMounted returns the path this volume was last mounted at by
// whatever tool wrote that field, or "" on a revision-0 volume. This
// driver never writes it itself.
func (v *Volume) LastMounted() string { return v.sb.LastMounted }

// ErrorPolicy returns the volume's on-disk error-handling policy. This
// driver never acts on it; the accessor exists so a caller can inspect
// and report it.
func (v *Volume) ErrorPolicy() ErrorPolicy { return v.sb.ErrorPolicy }

// readInode reads and parses inode number ino.
func (v *Volume) readInode(ino uint32) (*Inode, error) {
	if ino == 0 || ino > v.sb.InodesCount {
		return nil, err("readInode", "", KindInvalidArgument, nil)
	}
	group := inodeGroup(v.sb, ino)
	if int(group) >= len(v.gds) {
		return nil, err("readInode", "", KindCorruptEntry, nil)
	}
	off := computeInodeOffset(v.sb, v.gds[group], ino)
	buf := make([]byte, v.sb.effectiveInodeSize())
	if _, rerr := v.dev.ReadAt(buf, int64(off)); rerr != nil {
		return nil, err("readInode", "", KindIoFailure, rerr)
	}
	return parseInode(buf), nil
}

// OpenDirectory resolves path, relative to the root, to a directory and
// returns an iterator over its entries. Use OpenDirectoryFrom to resolve
// relative to a different origin.
func (v *Volume) OpenDirectory(path string) (*DirIterator, error) {
	return v.OpenDirectoryFrom(path, "")
}

// OpenDirectoryFrom is OpenDirectory with an explicit origin: path is
// resolved relative to originPath (which must itself be absolute) when
// path doesn't begin with "/".
func (v *Volume) OpenDirectoryFrom(path, originPath string) (*DirIterator, error) {
	if cerr := v.checkOpen("OpenDirectory"); cerr != nil {
		return nil, cerr
	}
	_, inode, rerr := v.Resolve(path, originPath)
	if rerr != nil {
		return nil, rerr
	}
	if !inode.Is(FormatDirectory) {
		return nil, err("OpenDirectory", path, KindNotADirectory, nil)
	}
	return v.openDirIterator(inode)
}

// ReadFile reads the full contents of the regular file at path, resolved
// relative to the root.
func (v *Volume) ReadFile(path string) ([]byte, error) {
	if cerr := v.checkOpen("ReadFile"); cerr != nil {
		return nil, cerr
	}
	_, inode, rerr := v.Resolve(path, "")
	if rerr != nil {
		return nil, rerr
	}
	if inode.Is(FormatDirectory) {
		return nil, err("ReadFile", path, KindNotADirectory, nil)
	}
	buf := make([]byte, inode.Size())
	if len(buf) > 0 {
		if _, derr := readInodeData(v.dev, v.sb, inode, buf, 0); derr != nil {
			return nil, err("ReadFile", path, KindIoFailure, derr)
		}
	}
	return buf, nil
}

// ReadAt reads len(p) bytes of the regular file at path (resolved
// relative to the root) starting at off, following io.ReaderAt's
// contract: it returns as many bytes as are available before an error,
// and io.EOF once off reaches the file's end.
func (v *Volume) ReadAt(path string, p []byte, off int64) (int, error) {
	if cerr := v.checkOpen("ReadAt"); cerr != nil {
		return 0, cerr
	}
	_, inode, rerr := v.Resolve(path, "")
	if rerr != nil {
		return 0, rerr
	}
	if inode.Is(FormatDirectory) {
		return 0, err("ReadAt", path, KindNotADirectory, nil)
	}
	return readInodeData(v.dev, v.sb, inode, p, off)
}
