package staging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// TIFF tags read from the first IFD.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagModelTransform   = 34264
	tagGeoKeyDirectory  = 34735
	geoKeyGeographicCRS = 2048
	geoKeyProjectedCRS  = 3072
	geoKeyUserDefined   = 32767
)

// SampleFormat values.
const (
	sfUint  = 1
	sfInt   = 2
	sfFloat = 3
)

// maxBandBytes bounds the band 1 data read by readBandOne.
const maxBandBytes = 1 << 31

// TIFF field types.
const (
	dtByte   = 1
	dtASCII  = 2
	dtShort  = 3
	dtLong   = 4
	dtSByte  = 6
	dtSShort = 8
	dtSLong  = 9
	dtFloat  = 11
	dtDouble = 12
)

var typeSize = map[uint16]int{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4,
	dtSByte: 1, dtSShort: 2, dtSLong: 4, dtFloat: 4, dtDouble: 8,
}

// ErrNotTIFF is returned when the input does not start with a TIFF header.
var ErrNotTIFF = errors.New("not a TIFF file")

// GeoInfo is the georeferencing and layout information of a (Geo)TIFF.
type GeoInfo struct {
	Width  int
	Height int
	// Count is the number of bands (samples per pixel).
	Count int
	// DType is the numpy-style data type name of band 1, e.g. uint8 or float32.
	DType string
	// Transform is the affine pixel-to-model transform as [a b c d e f 0 0 1].
	Transform []float64
	// CRS is "EPSG:<code>", or "None" when the file carries no georeference.
	CRS string
	// Bounds is [left, bottom, right, top] in model coordinates.
	Bounds []float64

	layout sampleLayout
}

// sampleLayout is where and how band 1 samples are stored.
type sampleLayout struct {
	bo          binary.ByteOrder
	bits        int
	format      int
	compression int
	planar      int
	offsets     []float64
	counts      []float64
}

// ReadGeoInfo reads the first IFD of a classic TIFF and extracts its GeoTIFF tags.
// Files without geo tags get the identity transform.
func ReadGeoInfo(r io.ReaderAt) (*GeoInfo, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTIFF, err)
	}
	var bo binary.ByteOrder
	switch string(hdr[:4]) {
	case "II\x2A\x00":
		bo = binary.LittleEndian
	case "MM\x00\x2A":
		bo = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}

	ifd := int64(bo.Uint32(hdr[4:]))
	var cnt [2]byte
	if _, err := r.ReadAt(cnt[:], ifd); err != nil {
		return nil, fmt.Errorf("read IFD: %w", err)
	}
	n := int(bo.Uint16(cnt[:]))
	entries := make([]byte, n*12)
	if _, err := r.ReadAt(entries, ifd+2); err != nil {
		return nil, fmt.Errorf("read IFD entries: %w", err)
	}

	tags := make(map[uint16][]float64, n)
	for i := 0; i < n; i++ {
		e := entries[i*12 : i*12+12]
		tag := bo.Uint16(e[0:])
		switch tag {
		case tagImageWidth, tagImageLength, tagBitsPerSample, tagSamplesPerPixel, tagSampleFormat,
			tagCompression, tagStripOffsets, tagStripByteCounts, tagPlanarConfig,
			tagModelPixelScale, tagModelTiepoint, tagModelTransform, tagGeoKeyDirectory:
		default:
			continue
		}
		vals, err := readField(r, bo, e)
		if err != nil {
			return nil, fmt.Errorf("read tag %d: %w", tag, err)
		}
		tags[tag] = vals
	}

	info := &GeoInfo{
		Width:  int(first(tags[tagImageWidth], 0)),
		Height: int(first(tags[tagImageLength], 0)),
		Count:  int(first(tags[tagSamplesPerPixel], 1)),
		CRS:    crsFromGeoKeys(tags[tagGeoKeyDirectory]),
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}
	info.layout = sampleLayout{
		bo:          bo,
		bits:        int(first(tags[tagBitsPerSample], 1)),
		format:      int(first(tags[tagSampleFormat], sfUint)),
		compression: int(first(tags[tagCompression], 1)),
		planar:      int(first(tags[tagPlanarConfig], 1)),
		offsets:     tags[tagStripOffsets],
		counts:      tags[tagStripByteCounts],
	}
	info.DType = dtypeName(info.layout.bits, info.layout.format)
	info.Transform = affine(tags[tagModelPixelScale], tags[tagModelTiepoint], tags[tagModelTransform])

	a, c, e, f := info.Transform[0], info.Transform[2], info.Transform[4], info.Transform[5]
	w, h := float64(info.Width), float64(info.Height)
	info.Bounds = []float64{c, f + e*h, c + a*w, f}
	return info, nil
}

// needsSampleDecoder reports whether band 1 uses a sample type that
// x/image/tiff cannot decode: signed, floating point or 32-bit samples.
func (l *sampleLayout) needsSampleDecoder() bool {
	return l.format == sfInt || l.format == sfFloat || l.bits == 32
}

// readBandOne decodes band 1 of an uncompressed, stripped TIFF described by info.
func readBandOne(r io.ReaderAt, info *GeoInfo) (*Array, error) {
	l := info.layout
	if l.compression != 1 {
		return nil, fmt.Errorf("%s raster with compression %d is not supported", info.DType, l.compression)
	}
	if len(l.offsets) == 0 || len(l.offsets) != len(l.counts) {
		return nil, fmt.Errorf("%s raster has no usable strips", info.DType)
	}
	size := l.bits / 8
	decode, err := sampleDecoder(l.bo, l.format, l.bits)
	if err != nil {
		return nil, err
	}

	stride := max(info.Count, 1)
	if l.planar == 2 {
		stride = 1
	}
	w, h := info.Width, info.Height
	if int64(w)*int64(h)*int64(stride*size) > maxBandBytes {
		return nil, fmt.Errorf("raster of %dx%d %s samples is too large", w, h, info.DType)
	}
	need := w * h * stride * size

	// Band 1 is the start of the pixel data for both planar layouts.
	buf := make([]byte, 0, need)
	for i := 0; i < len(l.offsets) && len(buf) < need; i++ {
		n := min(int(l.counts[i]), need-len(buf))
		start := len(buf)
		buf = buf[:start+n]
		if got, err := r.ReadAt(buf[start:], int64(l.offsets[i])); got < n {
			return nil, fmt.Errorf("read strip %d: %w", i, err)
		}
	}
	if len(buf) < need {
		return nil, fmt.Errorf("raster data is truncated: %d of %d bytes", len(buf), need)
	}

	vals := make([]float64, w*h)
	for i := range vals {
		vals[i] = decode(buf[i*stride*size:])
	}
	return &Array{Shape: []int{h, w}, Values: vals}, nil
}

func sampleDecoder(bo binary.ByteOrder, format, bits int) (func([]byte) float64, error) {
	switch {
	case format == sfFloat && bits == 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(bo.Uint32(b))) }, nil
	case format == sfFloat && bits == 64:
		return func(b []byte) float64 { return math.Float64frombits(bo.Uint64(b)) }, nil
	case format == sfInt && bits == 8:
		return func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case format == sfInt && bits == 16:
		return func(b []byte) float64 { return float64(int16(bo.Uint16(b))) }, nil
	case format == sfInt && bits == 32:
		return func(b []byte) float64 { return float64(int32(bo.Uint32(b))) }, nil
	case format == sfUint && bits == 32:
		return func(b []byte) float64 { return float64(bo.Uint32(b)) }, nil
	}
	return nil, fmt.Errorf("unsupported sample type %s", dtypeName(bits, format))
}

func readField(r io.ReaderAt, bo binary.ByteOrder, e []byte) ([]float64, error) {
	typ := bo.Uint16(e[2:])
	count := int(bo.Uint32(e[4:]))
	size, ok := typeSize[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported field type %d", typ)
	}
	if count < 0 || count > 1<<20 {
		return nil, fmt.Errorf("field count %d out of range", count)
	}
	raw := make([]byte, size*count)
	if len(raw) <= 4 {
		copy(raw, e[8:])
	} else if _, err := r.ReadAt(raw, int64(bo.Uint32(e[8:]))); err != nil {
		return nil, err
	}

	out := make([]float64, count)
	for i := range out {
		b := raw[i*size:]
		switch typ {
		case dtByte, dtASCII:
			out[i] = float64(b[0])
		case dtSByte:
			out[i] = float64(int8(b[0]))
		case dtShort:
			out[i] = float64(bo.Uint16(b))
		case dtSShort:
			out[i] = float64(int16(bo.Uint16(b)))
		case dtLong:
			out[i] = float64(bo.Uint32(b))
		case dtSLong:
			out[i] = float64(int32(bo.Uint32(b)))
		case dtFloat:
			out[i] = float64(math.Float32frombits(bo.Uint32(b)))
		case dtDouble:
			out[i] = math.Float64frombits(bo.Uint64(b))
		}
	}
	return out, nil
}

func affine(scale, tie, transform []float64) []float64 {
	if len(transform) == 16 {
		return []float64{transform[0], transform[1], transform[3], transform[4], transform[5], transform[7], 0, 0, 1}
	}
	if len(scale) >= 2 && len(tie) >= 6 {
		sx, sy := scale[0], scale[1]
		i, j, x, y := tie[0], tie[1], tie[3], tie[4]
		return []float64{sx, 0, x - i*sx, 0, -sy, y + j*sy, 0, 0, 1}
	}
	return []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func crsFromGeoKeys(dir []float64) string {
	if len(dir) < 4 {
		return "None"
	}
	keys := map[int]int{}
	n := int(dir[3])
	for k := 0; k < n && 4+k*4+3 < len(dir); k++ {
		e := dir[4+k*4:]
		// Location 0 means the value is stored inline.
		if e[1] == 0 {
			keys[int(e[0])] = int(e[3])
		}
	}
	for _, key := range []int{geoKeyProjectedCRS, geoKeyGeographicCRS} {
		if code, ok := keys[key]; ok && code > 0 && code != geoKeyUserDefined {
			return fmt.Sprintf("EPSG:%d", code)
		}
	}
	return "None"
}

func dtypeName(bits, format int) string {
	switch format {
	case 2:
		return fmt.Sprintf("int%d", bits)
	case 3:
		return fmt.Sprintf("float%d", bits)
	default:
		if bits == 1 {
			return "bool"
		}
		return fmt.Sprintf("uint%d", bits)
	}
}

func first(v []float64, def float64) float64 {
	if len(v) == 0 {
		return def
	}
	return v[0]
}
