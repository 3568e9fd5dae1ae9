package ext2

import "encoding/binary"

// groupDescriptorSize is the on-disk size of one block group descriptor.
// This driver never mounts a volume with the 64bit incompat feature, so
// the descriptor is always the original 32-byte layout.
const groupDescriptorSize = 32

// GroupDescriptor describes one block group: where its block bitmap,
// inode bitmap, and inode table live, and its free-space counters.
type GroupDescriptor struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
}

func parseGroupDescriptor(data []byte) GroupDescriptor {
	le := binary.LittleEndian
	return GroupDescriptor{
		BlockBitmap:     le.Uint32(data[0x00:]),
		InodeBitmap:     le.Uint32(data[0x04:]),
		InodeTable:      le.Uint32(data[0x08:]),
		FreeBlocksCount: le.Uint16(data[0x0C:]),
		FreeInodesCount: le.Uint16(data[0x0E:]),
		UsedDirsCount:   le.Uint16(data[0x10:]),
	}
}

func (gd GroupDescriptor) marshal(dst []byte) {
	le := binary.LittleEndian
	le.PutUint32(dst[0x00:], gd.BlockBitmap)
	le.PutUint32(dst[0x04:], gd.InodeBitmap)
	le.PutUint32(dst[0x08:], gd.InodeTable)
	le.PutUint16(dst[0x0C:], gd.FreeBlocksCount)
	le.PutUint16(dst[0x0E:], gd.FreeInodesCount)
	le.PutUint16(dst[0x10:], gd.UsedDirsCount)
	// bg_pad and bg_reserved are left zeroed.
}

// readGroupDescriptors reads the whole block group descriptor table,
// which immediately follows the superblock's block and spans
// ceil(groupCount*32 / blockSize) blocks.
func readGroupDescriptors(dev Device, sb *Superblock) ([]GroupDescriptor, error) {
	groupCount := sb.BlockGroupCount()
	if groupCount == 0 {
		return nil, nil
	}
	tableSize := int(groupCount) * groupDescriptorSize
	buf := make([]byte, tableSize)
	off := int64(sb.descriptorTableBlock()) * int64(sb.BlockSize())
	if _, err := dev.ReadAt(buf, off); err != nil {
		return nil, err
	}
	descs := make([]GroupDescriptor, groupCount)
	for i := range descs {
		descs[i] = parseGroupDescriptor(buf[i*groupDescriptorSize:])
	}
	return descs, nil
}

// writeGroupDescriptors writes the whole descriptor table back, mirroring
// readGroupDescriptors's layout.
func writeGroupDescriptors(dev Device, sb *Superblock, descs []GroupDescriptor) error {
	if len(descs) == 0 {
		return nil
	}
	buf := make([]byte, len(descs)*groupDescriptorSize)
	for i, gd := range descs {
		gd.marshal(buf[i*groupDescriptorSize:])
	}
	off := int64(sb.descriptorTableBlock()) * int64(sb.BlockSize())
	_, err := dev.WriteAt(buf, off)
	return err
}
