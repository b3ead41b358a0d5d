package staging

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	"golang.org/x/image/tiff"
)

// RasterData is a staged raster: band 1 plus its georeferencing.
type RasterData struct {
	Data      *Array    `json:"data"`
	Shape     []int     `json:"shape"`
	Transform []float64 `json:"transform"`
	CRS       string    `json:"crs"`
	Bounds    []float64 `json:"bounds"`
	Segments  []Segment `json:"segments,omitempty"`
}

// StageRaster reads band 1 of the (Geo)TIFF at path. Values are divided by
// the maximum when it exceeds 1.0.
func (s *Stager) StageRaster(path string) (*RasterData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("processing urban data: %w", err)
	}
	defer f.Close()

	rd, err := s.stageRaster(f)
	if err != nil {
		return nil, fmt.Errorf("processing urban data: %w", err)
	}
	return rd, nil
}

func (s *Stager) stageRaster(r io.ReadSeeker) (*RasterData, error) {
	ra, ok := r.(io.ReaderAt)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		ra = bytes.NewReader(b)
		r = bytes.NewReader(b)
	}
	info, err := ReadGeoInfo(ra)
	if err != nil {
		return nil, err
	}
	band, err := decodeBandOne(r, ra, info)
	if err != nil {
		return nil, err
	}
	if peak, ok := band.Max(); ok && peak > 1.0 {
		band.Scale(peak)
	}

	rd := &RasterData{
		Data:      band,
		Shape:     append([]int(nil), band.Shape...),
		Transform: info.Transform,
		CRS:       info.CRS,
		Bounds:    info.Bounds,
	}
	if s.segmentSize > 0 {
		segs, err := SegmentArray(band, s.segmentSize)
		if err != nil {
			return nil, err
		}
		rd.Segments = segs
	}
	return rd, nil
}

func decodeBandOne(r io.ReadSeeker, ra io.ReaderAt, info *GeoInfo) (*Array, error) {
	if info.layout.needsSampleDecoder() {
		return readBandOne(ra, info)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	return bandOne(img), nil
}

// bandOne extracts the first sample of every pixel as a height x width array.
func bandOne(img image.Image) *Array {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	vals := make([]float64, 0, w*h)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v float64
			switch m := img.(type) {
			case *image.Gray:
				v = float64(m.GrayAt(x, y).Y)
			case *image.Gray16:
				v = float64(m.Gray16At(x, y).Y)
			case *image.Paletted:
				v = float64(m.ColorIndexAt(x, y))
			case *image.RGBA:
				v = float64(m.Pix[m.PixOffset(x, y)])
			case *image.NRGBA:
				v = float64(m.Pix[m.PixOffset(x, y)])
			case *image.RGBA64:
				i := m.PixOffset(x, y)
				v = float64(uint16(m.Pix[i])<<8 | uint16(m.Pix[i+1]))
			case *image.NRGBA64:
				i := m.PixOffset(x, y)
				v = float64(uint16(m.Pix[i])<<8 | uint16(m.Pix[i+1]))
			default:
				r, _, _, _ := img.At(x, y).RGBA()
				v = float64(r >> 8)
			}
			vals = append(vals, v)
		}
	}
	return &Array{Shape: []int{h, w}, Values: vals}
}
