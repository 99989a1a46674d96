package bmff

import (
	"fmt"

	"github.com/rawkit/rawkit/bitstream"
)

// CompressionParams is the fixed-layout CMP1 box: CRX tile/plane
// geometry and the wavelet-level/encoding-type fields vendorcodec's
// CRX reader needs.
type CompressionParams struct {
	HeaderSize    uint16
	Version       uint16
	FrameWidth    uint32
	FrameHeight   uint32
	TileWidth     uint32
	TileHeight    uint32
	NBits         uint8
	NPlanes       uint8
	CFALayout     uint8
	EncType       uint8
	ImageLevels   uint8
	HasTileCols   uint8
	HasTileRows   uint8
	MDATHdrSize   uint32
}

// ParseCMP1 reads a CRAW sample entry's CMP1 child box payload: a
// straight big-endian record, no nested boxes.
func ParseCMP1(payload []byte) (params CompressionParams, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bmff: malformed CMP1 box: %v", r)
		}
	}()
	bs := bitstream.NewByteStream(payload, bitstream.BigEndian)
	params.HeaderSize = bs.GetU16()
	params.Version = bs.GetU16()
	bs.ConsumeBytes(4) // reserved
	params.FrameWidth = bs.GetU32()
	params.FrameHeight = bs.GetU32()
	params.TileWidth = bs.GetU32()
	params.TileHeight = bs.GetU32()
	bs.ConsumeBytes(4) // reserved
	params.NBits = bs.GetU8()
	params.NPlanes = bs.GetU8()
	params.CFALayout = bs.GetU8()
	params.EncType = bs.GetU8()
	params.ImageLevels = bs.GetU8()
	params.HasTileCols = bs.GetU8()
	params.HasTileRows = bs.GetU8()
	bs.ConsumeBytes(1) // reserved
	params.MDATHdrSize = bs.GetU32()
	return params, nil
}

