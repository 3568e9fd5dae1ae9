package ext2

import (
	"encoding/binary"
	"io"
)

// blockCache memoizes the most recently loaded indirect block at one
// level of the pointer tree, so a sequential walk over a file's blocks
// doesn't re-read the same indirect block once per entry it contains.
type blockCache struct {
	loaded bool
	num    uint32
	data   []byte
}

// dataEngine walks an inode's direct/indirect/doubly-indirect/
// triply-indirect block pointers to map a logical block index to a
// physical block number. One engine is used per read so its caches stay
// valid across consecutive indices in the same call.
type dataEngine struct {
	dev Device
	sb  *Superblock

	single                              blockCache
	doubleOuter, doubleInner            blockCache
	tripleOuter, tripleMid, tripleInner blockCache
}

// load returns the contents of block num, using the cache if it already
// holds that block. num == 0 is a hole: the indirect block itself was
// never allocated, and load reports that with a nil slice rather than
// reading physical block 0, which overlaps the boot sector and
// superblock on every ext2 volume.
func (e *dataEngine) load(c *blockCache, num uint32) ([]byte, error) {
	if num == 0 {
		return nil, nil
	}
	if c.loaded && c.num == num {
		return c.data, nil
	}
	buf := make([]byte, e.sb.BlockSize())
	if _, err := e.dev.ReadAt(buf, int64(num)*int64(e.sb.BlockSize())); err != nil {
		return nil, err
	}
	c.loaded, c.num, c.data = true, num, buf
	return buf, nil
}

func pointerAt(data []byte, slot uint64) uint32 {
	return binary.LittleEndian.Uint32(data[slot*4:])
}

// maxBlockIndex returns the number of logical blocks a file on this
// volume can address: one past the index of the last triply-indirect
// block.
func maxBlockIndex(sb *Superblock) uint64 {
	p := uint64(sb.PointersPerBlock())
	return directBlocks + p + p*p + p*p*p
}

// blockForIndex maps logical block index to a physical block number.
// A zero result means the block is a hole: the corresponding pointer, or
// one of the indirect blocks leading to it, was never allocated. Every
// level is re-fetched fresh for each call rather than reused from an
// earlier index; reusing a block number fetched for index N-1 breaks
// every index that crosses into a new indirect block.
func (e *dataEngine) blockForIndex(inode *Inode, index uint64) (uint32, error) {
	p := uint64(e.sb.PointersPerBlock())

	if index < directBlocks {
		return inode.Block[index], nil
	}
	index -= directBlocks

	if index < p {
		data, err := e.load(&e.single, inode.Block[12])
		if err != nil {
			return 0, err
		}
		if data == nil {
			return 0, nil
		}
		return pointerAt(data, index), nil
	}
	index -= p

	if index < p*p {
		outer := index / p
		inner := index % p
		outerData, err := e.load(&e.doubleOuter, inode.Block[13])
		if err != nil {
			return 0, err
		}
		if outerData == nil {
			return 0, nil
		}
		midBlock := pointerAt(outerData, outer)
		midData, err := e.load(&e.doubleInner, midBlock)
		if err != nil {
			return 0, err
		}
		if midData == nil {
			return 0, nil
		}
		return pointerAt(midData, inner), nil
	}
	index -= p * p

	if index < p*p*p {
		outer := index / (p * p)
		rem := index % (p * p)
		mid := rem / p
		inner := rem % p

		outerData, err := e.load(&e.tripleOuter, inode.Block[14])
		if err != nil {
			return 0, err
		}
		if outerData == nil {
			return 0, nil
		}
		midBlock := pointerAt(outerData, outer)
		midData, err := e.load(&e.tripleMid, midBlock)
		if err != nil {
			return 0, err
		}
		if midData == nil {
			return 0, nil
		}
		innerBlock := pointerAt(midData, mid)
		innerData, err := e.load(&e.tripleInner, innerBlock)
		if err != nil {
			return 0, err
		}
		if innerData == nil {
			return 0, nil
		}
		return pointerAt(innerData, inner), nil
	}

	return 0, err("readInodeData", "", KindFileTooLarge, nil)
}

// readInodeData reads the portion of inode's data in [off, off+len(p))
// into p, zero-filling holes, and returns the number of bytes copied.
// Reads that start at or past the inode's size return io.EOF; a read
// that starts before the size but whose requested range extends past it
// is truncated to the size, mirroring io.ReaderAt on a bounded source.
func readInodeData(dev Device, sb *Superblock, inode *Inode, p []byte, off int64) (int, error) {
	size := int64(inode.Size())
	if off < 0 {
		return 0, err("readInodeData", "", KindInvalidArgument, nil)
	}
	if off >= size {
		return 0, io.EOF
	}
	end := off + int64(len(p))
	if end > size {
		end = size
	}
	if end > int64(maxBlockIndex(sb))*int64(sb.BlockSize()) {
		return 0, err("readInodeData", "", KindFileTooLarge, nil)
	}

	engine := &dataEngine{dev: dev, sb: sb}
	blockSize := int64(sb.BlockSize())
	n := 0
	for pos := off; pos < end; {
		blockIndex := uint64(pos / blockSize)
		blockOff := pos % blockSize
		chunk := blockSize - blockOff
		if remaining := end - pos; chunk > remaining {
			chunk = remaining
		}

		phys, err := engine.blockForIndex(inode, blockIndex)
		if err != nil {
			return n, err
		}

		dst := p[pos-off : pos-off+chunk]
		if phys == 0 {
			for i := range dst {
				dst[i] = 0
			}
		} else if _, err := dev.ReadAt(dst, int64(phys)*blockSize+blockOff); err != nil {
			return n, err
		}

		n += int(chunk)
		pos += chunk
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
