package segmentation

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrsinham/spinesuv/internal/volume"
)

const (
	niftiHeaderSize = 348
	niftiVoxOffset  = 352
	niftiFloat32    = 16
)

// niftiHeader is the on-disk NIfTI-1 header, packed little-endian.
type niftiHeader struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QOffsetX      float32
	QOffsetY      float32
	QOffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// WriteLabelVolume writes an (x, y, z) array as a float32 NIfTI-1 file,
// gzip-compressed when path ends in .gz. spacing is in millimetres.
func WriteLabelVolume(path string, a volume.Array, spacing [3]float64) error {
	if a.Len() != len(a.Data) || a.Len() == 0 {
		return fmt.Errorf("write %s: invalid array shape %v", path, a.Shape)
	}
	for d, n := range a.Shape {
		if n > math.MaxInt16 {
			return fmt.Errorf("write %s: dimension %d too large (%d)", path, d, n)
		}
	}

	hdr := niftiHeader{
		SizeofHdr: niftiHeaderSize,
		Regular:   'r',
		Dim:       [8]int16{3, int16(a.Shape[0]), int16(a.Shape[1]), int16(a.Shape[2]), 1, 1, 1, 1},
		Datatype:  niftiFloat32,
		Bitpix:    32,
		Pixdim:    [8]float32{1, float32(spacing[0]), float32(spacing[1]), float32(spacing[2]), 1, 1, 1, 1},
		VoxOffset: niftiVoxOffset,
		SclSlope:  1,
		XYZTUnits: 2 | 8, // mm, s
		SformCode: 1,
		SrowX:     [4]float32{float32(spacing[0]), 0, 0, 0},
		SrowY:     [4]float32{0, float32(spacing[1]), 0, 0},
		SrowZ:     [4]float32{0, 0, float32(spacing[2]), 0},
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	copy(hdr.Descrip[:], "spinesuv label volume")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	buf.Write(make([]byte, niftiVoxOffset-niftiHeaderSize)) // empty extension block

	// NIfTI stores x fastest.
	voxels := make([]float32, a.Len())
	i := 0
	for z := 0; z < a.Shape[2]; z++ {
		for y := 0; y < a.Shape[1]; y++ {
			for x := 0; x < a.Shape[0]; x++ {
				voxels[i] = float32(a.At(x, y, z))
				i++
			}
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, voxels); err != nil {
		return fmt.Errorf("encode voxels: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		if _, err := f.Write(buf.Bytes()); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		return f.Close()
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
