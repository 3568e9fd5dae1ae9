package ext2

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// superblockOffset is the fixed byte offset of the superblock on
	// every ext2 volume.
	superblockOffset = 1024
	superblockSize   = 1024

	extMagic = 0xEF53
)

// FsState is the on-disk filesystem state field (s_state).
type FsState uint16

const (
	StateValid     FsState = 1
	StateHasErrors FsState = 2
)

// ErrorPolicy is the on-disk error-handling policy (s_errors). This driver
// never acts on it (repair and remount-readonly are out of scope), but it
// is read from and written back with the rest of the superblock so callers
// that care can inspect it.
type ErrorPolicy uint16

const (
	ErrorsIgnore          ErrorPolicy = 1
	ErrorsRemountReadOnly ErrorPolicy = 2
	ErrorsPanic           ErrorPolicy = 3
)

// CreatorOS is the on-disk s_creator_os field.
type CreatorOS uint32

const (
	OSLinux   CreatorOS = 0
	OSHurd    CreatorOS = 1
	OSMasix   CreatorOS = 2
	OSFreeBSD CreatorOS = 3
	OSLites   CreatorOS = 4
)

// Compat, incompat, and read-only-compat feature bits (s_feature_compat,
// s_feature_incompat, s_feature_ro_compat). This driver only ever mounts
// volumes with feature_incompat == 0 and feature_ro_compat == 0; the
// compat bits are advisory and are never consulted for a mount decision.
const (
	FeatureCompatDirPrealloc  uint32 = 0x0001
	FeatureCompatImagicInodes uint32 = 0x0002
	FeatureCompatHasJournal   uint32 = 0x0004
	FeatureCompatExtAttr      uint32 = 0x0008
	FeatureCompatResizeIno    uint32 = 0x0010
	FeatureCompatDirIndex     uint32 = 0x0020

	FeatureIncompatCompression uint32 = 0x0001
	FeatureIncompatFileType    uint32 = 0x0002
	FeatureIncompatRecover     uint32 = 0x0004
	FeatureIncompatJournalDev  uint32 = 0x0008
	FeatureIncompatMetaBg      uint32 = 0x0010

	FeatureROCompatSparseSuper uint32 = 0x0001
	FeatureROCompatLargeFile   uint32 = 0x0002
	FeatureROCompatBtreeDir    uint32 = 0x0004
)

// Superblock holds a mounted volume's superblock, parsed from the 1024
// bytes at device offset 1024. Revision-1-only fields are zero on a
// revision-0 volume.
type Superblock struct {
	// raw is the full 1024-byte record as read from the device. marshal
	// starts from it, so fields this struct doesn't model (default mount
	// options, first meta block group, the reserved tail) round-trip
	// unchanged through an unmount instead of being written back as
	// zeroes.
	raw []byte

	InodesCount     uint32
	BlocksCount     uint32
	ReservedBlocks  uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	LogFragSize     uint32
	BlocksPerGroup  uint32
	FragsPerGroup   uint32
	InodesPerGroup  uint32
	MTime           uint32 // last mount time, seconds since epoch
	WTime           uint32 // last write time
	MountCount      uint16
	MaxMountCount   int16
	Magic           uint16
	State           FsState
	ErrorPolicy     ErrorPolicy
	MinorRevLevel   uint16
	LastCheck       uint32
	CheckInterval   uint32
	CreatorOS       CreatorOS
	RevLevel        uint32
	DefResuid       uint16
	DefResgid       uint16

	// Revision-1 fields. Zero-valued on a revision-0 volume.
	FirstIno          uint32
	InodeSize         uint16
	BlockGroupNr      uint16
	FeatureCompat     uint32
	FeatureIncompat   uint32
	FeatureROCompat   uint32
	UUID              uuid.UUID
	VolumeName        string
	LastMounted       string
	AlgoBitmap        uint32
	PreallocBlocks    uint8
	PreallocDirBlocks uint8
	JournalUUID       uuid.UUID
	JournalInum       uint32
	JournalDev        uint32
	LastOrphan        uint32
	HashSeed          [4]uint32
	DefHashVersion    uint8
}

// BlockSize is the derived block size in bytes: 1024 << s_log_block_size.
func (sb *Superblock) BlockSize() uint32 {
	return 1024 << sb.LogBlockSize
}

// PointersPerBlock is the number of 4-byte block-number entries that fit
// in one indirect block: block_size / 4.
func (sb *Superblock) PointersPerBlock() uint32 {
	return sb.BlockSize() / 4
}

// BlockGroupCount is the derived block group count: ceil(blocks_count /
// blocks_per_group).
func (sb *Superblock) BlockGroupCount() uint32 {
	if sb.BlocksPerGroup == 0 {
		return 0
	}
	n := sb.BlocksCount / sb.BlocksPerGroup
	if sb.BlocksCount%sb.BlocksPerGroup != 0 {
		n++
	}
	return n
}

// effectiveInodeSize returns s_inode_size for a revision-1 volume, or the
// fixed 128-byte revision-0 inode size.
func (sb *Superblock) effectiveInodeSize() uint16 {
	if sb.RevLevel == 0 || sb.InodeSize == 0 {
		return 128
	}
	return sb.InodeSize
}

// descriptorTableBlock returns the block number at which the block group
// descriptor table begins: the block following the superblock.
func (sb *Superblock) descriptorTableBlock() uint64 {
	if sb.BlockSize() > 1024 {
		return 1
	}
	return 2
}

// LastMountTime and LastCheckTime convert the raw epoch-seconds fields
// to time.Time for callers that want it; the on-disk representation
// stays a bare integer.
func (sb *Superblock) LastMountTime() time.Time { return time.Unix(int64(sb.MTime), 0).UTC() }
func (sb *Superblock) LastCheckTime() time.Time { return time.Unix(int64(sb.LastCheck), 0).UTC() }

func parseSuperblock(data []byte) (*Superblock, error) {
	if len(data) < superblockSize {
		return nil, fmt.Errorf("short superblock read: got %d of %d bytes", len(data), superblockSize)
	}
	le := binary.LittleEndian
	sb := &Superblock{
		raw:             append([]byte(nil), data[:superblockSize]...),
		InodesCount:     le.Uint32(data[0x00:]),
		BlocksCount:     le.Uint32(data[0x04:]),
		ReservedBlocks:  le.Uint32(data[0x08:]),
		FreeBlocksCount: le.Uint32(data[0x0C:]),
		FreeInodesCount: le.Uint32(data[0x10:]),
		FirstDataBlock:  le.Uint32(data[0x14:]),
		LogBlockSize:    le.Uint32(data[0x18:]),
		LogFragSize:     le.Uint32(data[0x1C:]),
		BlocksPerGroup:  le.Uint32(data[0x20:]),
		FragsPerGroup:   le.Uint32(data[0x24:]),
		InodesPerGroup:  le.Uint32(data[0x28:]),
		MTime:           le.Uint32(data[0x2C:]),
		WTime:           le.Uint32(data[0x30:]),
		MountCount:      le.Uint16(data[0x34:]),
		MaxMountCount:   int16(le.Uint16(data[0x36:])),
		Magic:           le.Uint16(data[0x38:]),
		State:           FsState(le.Uint16(data[0x3A:])),
		ErrorPolicy:     ErrorPolicy(le.Uint16(data[0x3C:])),
		MinorRevLevel:   le.Uint16(data[0x3E:]),
		LastCheck:       le.Uint32(data[0x40:]),
		CheckInterval:   le.Uint32(data[0x44:]),
		CreatorOS:       CreatorOS(le.Uint32(data[0x48:])),
		RevLevel:        le.Uint32(data[0x4C:]),
		DefResuid:       le.Uint16(data[0x50:]),
		DefResgid:       le.Uint16(data[0x52:]),
	}

	if sb.RevLevel >= 1 {
		sb.FirstIno = le.Uint32(data[0x54:])
		sb.InodeSize = le.Uint16(data[0x58:])
		sb.BlockGroupNr = le.Uint16(data[0x5A:])
		sb.FeatureCompat = le.Uint32(data[0x5C:])
		sb.FeatureIncompat = le.Uint32(data[0x60:])
		sb.FeatureROCompat = le.Uint32(data[0x64:])
		sb.UUID, _ = uuid.FromBytes(data[0x68:0x78])
		sb.VolumeName = cstring(data[0x78:0x88])
		sb.LastMounted = cstring(data[0x88:0xC8])
		sb.AlgoBitmap = le.Uint32(data[0xC8:])
		sb.PreallocBlocks = data[0xCC]
		sb.PreallocDirBlocks = data[0xCD]
		sb.JournalUUID, _ = uuid.FromBytes(data[0xD0:0xE0])
		sb.JournalInum = le.Uint32(data[0xE0:])
		sb.JournalDev = le.Uint32(data[0xE4:])
		sb.LastOrphan = le.Uint32(data[0xE8:])
		for i := 0; i < 4; i++ {
			sb.HashSeed[i] = le.Uint32(data[0xEC+i*4:])
		}
		sb.DefHashVersion = data[0xFC]
	}

	return sb, nil
}

// marshal writes the superblock back into a 1024-byte buffer, mirroring
// parseSuperblock's layout field for field. The buffer starts as a copy
// of the record read at mount, so every byte outside the modeled fields
// is preserved verbatim.
func (sb *Superblock) marshal() []byte {
	data := make([]byte, superblockSize)
	copy(data, sb.raw)
	le := binary.LittleEndian
	le.PutUint32(data[0x00:], sb.InodesCount)
	le.PutUint32(data[0x04:], sb.BlocksCount)
	le.PutUint32(data[0x08:], sb.ReservedBlocks)
	le.PutUint32(data[0x0C:], sb.FreeBlocksCount)
	le.PutUint32(data[0x10:], sb.FreeInodesCount)
	le.PutUint32(data[0x14:], sb.FirstDataBlock)
	le.PutUint32(data[0x18:], sb.LogBlockSize)
	le.PutUint32(data[0x1C:], sb.LogFragSize)
	le.PutUint32(data[0x20:], sb.BlocksPerGroup)
	le.PutUint32(data[0x24:], sb.FragsPerGroup)
	le.PutUint32(data[0x28:], sb.InodesPerGroup)
	le.PutUint32(data[0x2C:], sb.MTime)
	le.PutUint32(data[0x30:], sb.WTime)
	le.PutUint16(data[0x34:], sb.MountCount)
	le.PutUint16(data[0x36:], uint16(sb.MaxMountCount))
	le.PutUint16(data[0x38:], sb.Magic)
	le.PutUint16(data[0x3A:], uint16(sb.State))
	le.PutUint16(data[0x3C:], uint16(sb.ErrorPolicy))
	le.PutUint16(data[0x3E:], sb.MinorRevLevel)
	le.PutUint32(data[0x40:], sb.LastCheck)
	le.PutUint32(data[0x44:], sb.CheckInterval)
	le.PutUint32(data[0x48:], uint32(sb.CreatorOS))
	le.PutUint32(data[0x4C:], sb.RevLevel)
	le.PutUint16(data[0x50:], sb.DefResuid)
	le.PutUint16(data[0x52:], sb.DefResgid)

	if sb.RevLevel >= 1 {
		le.PutUint32(data[0x54:], sb.FirstIno)
		le.PutUint16(data[0x58:], sb.InodeSize)
		le.PutUint16(data[0x5A:], sb.BlockGroupNr)
		le.PutUint32(data[0x5C:], sb.FeatureCompat)
		le.PutUint32(data[0x60:], sb.FeatureIncompat)
		le.PutUint32(data[0x64:], sb.FeatureROCompat)
		uuidBytes, _ := sb.UUID.MarshalBinary()
		copy(data[0x68:0x78], uuidBytes)
		putCString(data[0x78:0x88], sb.VolumeName)
		putCString(data[0x88:0xC8], sb.LastMounted)
		le.PutUint32(data[0xC8:], sb.AlgoBitmap)
		data[0xCC] = sb.PreallocBlocks
		data[0xCD] = sb.PreallocDirBlocks
		journalUUIDBytes, _ := sb.JournalUUID.MarshalBinary()
		copy(data[0xD0:0xE0], journalUUIDBytes)
		le.PutUint32(data[0xE0:], sb.JournalInum)
		le.PutUint32(data[0xE4:], sb.JournalDev)
		le.PutUint32(data[0xE8:], sb.LastOrphan)
		for i := 0; i < 4; i++ {
			le.PutUint32(data[0xEC+i*4:], sb.HashSeed[i])
		}
		data[0xFC] = sb.DefHashVersion
	}

	return data
}

// cstring trims a fixed-width, NUL-padded on-disk string field.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
