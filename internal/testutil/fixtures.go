// Package testutil builds small GeoTIFF and NetCDF files for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sort"

	"golang.org/x/image/tiff"
)

// GeoTags are the GeoTIFF tags added to an encoded TIFF.
type GeoTags struct {
	PixelScale []float64 // ModelPixelScale (33550)
	Tiepoint   []float64 // ModelTiepoint (33922)
	Transform  []float64 // ModelTransformation (34264)
	GeoKeys    []uint16  // GeoKeyDirectory (34735)
}

// GeoTIFF encodes img as an uncompressed little-endian TIFF and, when geo is
// set, rewrites its IFD to carry the given GeoTIFF tags.
func GeoTIFF(img image.Image, geo *GeoTags) ([]byte, error) {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	if geo == nil {
		return buf.Bytes(), nil
	}
	return withGeoTags(buf.Bytes(), geo), nil
}

// SampleTIFF encodes a single-band, uncompressed little-endian TIFF with one
// strip per row. Format is "int8", "int16", "int32", "uint32", "float32" or
// "float64"; vals are row-major.
func SampleTIFF(width, height int, format string, vals []float64, geo *GeoTags) ([]byte, error) {
	type sample struct{ bits, sf uint16 }
	st, ok := map[string]sample{
		"int8": {8, 2}, "int16": {16, 2}, "int32": {32, 2},
		"uint32": {32, 1}, "float32": {32, 3}, "float64": {64, 3},
	}[format]
	if !ok {
		return nil, fmt.Errorf("unknown sample format %q", format)
	}
	if len(vals) != width*height {
		return nil, fmt.Errorf("want %d values, got %d", width*height, len(vals))
	}

	le := binary.LittleEndian
	var pix []byte
	for _, v := range vals {
		switch format {
		case "int8":
			pix = append(pix, byte(int8(v)))
		case "int16":
			pix = le.AppendUint16(pix, uint16(int16(v)))
		case "int32":
			pix = le.AppendUint32(pix, uint32(int32(v)))
		case "uint32":
			pix = le.AppendUint32(pix, uint32(v))
		case "float32":
			pix = le.AppendUint32(pix, math.Float32bits(float32(v)))
		case "float64":
			pix = le.AppendUint64(pix, math.Float64bits(v))
		}
	}
	rowBytes := width * int(st.bits) / 8

	const nEntries = 11
	ifdLen := 2 + nEntries*12 + 4
	offsetsAt := 8 + ifdLen
	countsAt := offsetsAt + 4*height
	pixAt := countsAt + 4*height

	out := []byte("II\x2A\x00")
	out = le.AppendUint32(out, 8)
	out = le.AppendUint16(out, nEntries)
	entry := func(tag, typ uint16, count, value uint32) {
		out = le.AppendUint16(out, tag)
		out = le.AppendUint16(out, typ)
		out = le.AppendUint32(out, count)
		out = le.AppendUint32(out, value)
	}
	offsets, counts := uint32(offsetsAt), uint32(countsAt)
	if height == 1 {
		offsets, counts = uint32(pixAt), uint32(rowBytes)
	}
	entry(256, 4, 1, uint32(width))
	entry(257, 4, 1, uint32(height))
	entry(258, 3, 1, uint32(st.bits))
	entry(259, 3, 1, 1)
	entry(262, 3, 1, 1)
	entry(273, 4, uint32(height), offsets)
	entry(277, 3, 1, 1)
	entry(278, 4, 1, 1)
	entry(279, 4, uint32(height), counts)
	entry(284, 3, 1, 1)
	entry(339, 3, 1, uint32(st.sf))
	out = le.AppendUint32(out, 0)

	for y := 0; y < height; y++ {
		out = le.AppendUint32(out, uint32(pixAt+y*rowBytes))
	}
	for y := 0; y < height; y++ {
		out = le.AppendUint32(out, uint32(rowBytes))
	}
	out = append(out, pix...)
	if geo == nil {
		return out, nil
	}
	return withGeoTags(out, geo), nil
}

// withGeoTags rewrites the first IFD of the little-endian TIFF in out to
// carry geo.
func withGeoTags(out []byte, geo *GeoTags) []byte {
	le := binary.LittleEndian
	ifd := le.Uint32(out[4:])
	n := int(le.Uint16(out[ifd:]))
	type entry struct {
		tag  uint16
		raw  []byte // the 12 byte entry, value/offset possibly rewritten later
		data []byte // out-of-line data, nil for inline or existing offsets
	}
	var entries []entry
	for i := 0; i < n; i++ {
		e := append([]byte(nil), out[int(ifd)+2+i*12:int(ifd)+2+i*12+12]...)
		entries = append(entries, entry{tag: le.Uint16(e), raw: e})
	}

	addDoubles := func(tag uint16, vals []float64) {
		if len(vals) == 0 {
			return
		}
		data := make([]byte, 8*len(vals))
		for i, v := range vals {
			le.PutUint64(data[i*8:], math.Float64bits(v))
		}
		e := make([]byte, 12)
		le.PutUint16(e[0:], tag)
		le.PutUint16(e[2:], 12)
		le.PutUint32(e[4:], uint32(len(vals)))
		entries = append(entries, entry{tag: tag, raw: e, data: data})
	}
	addDoubles(33550, geo.PixelScale)
	addDoubles(33922, geo.Tiepoint)
	addDoubles(34264, geo.Transform)
	if len(geo.GeoKeys) > 0 {
		data := make([]byte, 2*len(geo.GeoKeys))
		for i, v := range geo.GeoKeys {
			le.PutUint16(data[i*2:], v)
		}
		e := make([]byte, 12)
		le.PutUint16(e[0:], 34735)
		le.PutUint16(e[2:], 3)
		le.PutUint32(e[4:], uint32(len(geo.GeoKeys)))
		if len(data) <= 4 {
			copy(e[8:], data)
			data = nil
		}
		entries = append(entries, entry{tag: 34735, raw: e, data: data})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Append out-of-line data, then the new IFD, then point the header at it.
	for i := range entries {
		if entries[i].data == nil {
			continue
		}
		if len(out)%2 == 1 {
			out = append(out, 0)
		}
		le.PutUint32(entries[i].raw[8:], uint32(len(out)))
		out = append(out, entries[i].data...)
	}
	if len(out)%2 == 1 {
		out = append(out, 0)
	}
	newIFD := uint32(len(out))
	out = le.AppendUint16(out, uint16(len(entries)))
	for _, e := range entries {
		out = append(out, e.raw...)
	}
	out = le.AppendUint32(out, 0)
	le.PutUint32(out[4:], newIFD)
	return out
}

// NCDim is a NetCDF dimension. Len 0 marks the record dimension.
type NCDim struct {
	Name string
	Len  int
}

// NCVar is a NetCDF variable. Type is one of "byte", "short", "int", "float"
// or "double". Values are row-major and cover every record for record variables.
// Attributes are always written as doubles.
type NCVar struct {
	Name   string
	Dims   []string
	Type   string
	Values []float64
	Attrs  map[string][]float64
}

var ncTypes = map[string]struct {
	code uint32
	size int
}{
	"byte": {1, 1}, "short": {3, 2}, "int": {4, 4}, "float": {5, 4}, "double": {6, 8},
}

// NetCDF encodes a CDF-1 (classic) file with numRecs records.
func NetCDF(numRecs int, dims []NCDim, vars []NCVar) ([]byte, error) {
	be := binary.BigEndian
	dimIndex := map[string]int{}
	for i, d := range dims {
		dimIndex[d.Name] = i
	}

	type layout struct {
		isRecord bool
		slab     int // bytes per record, or total bytes for fixed variables
	}
	lays := make([]layout, len(vars))
	var recVars int
	for i, v := range vars {
		t, ok := ncTypes[v.Type]
		if !ok {
			return nil, fmt.Errorf("unknown type %q", v.Type)
		}
		n := 1
		for j, dn := range v.Dims {
			di, ok := dimIndex[dn]
			if !ok {
				return nil, fmt.Errorf("unknown dimension %q", dn)
			}
			if dims[di].Len == 0 {
				if j != 0 {
					return nil, fmt.Errorf("record dimension must come first in %q", v.Name)
				}
				lays[i].isRecord = true
				continue
			}
			n *= dims[di].Len
		}
		lays[i].slab = n * t.size
		if lays[i].isRecord {
			recVars++
		}
	}
	pad := func(n int) int { return (n + 3) &^ 3 }
	vsize := func(i int) int {
		if lays[i].isRecord && recVars == 1 {
			return lays[i].slab
		}
		return pad(lays[i].slab)
	}

	writeName := func(b []byte, s string) []byte {
		b = be.AppendUint32(b, uint32(len(s)))
		b = append(b, s...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		return b
	}
	writeValues := func(b []byte, typ string, vals []float64) []byte {
		start := len(b)
		for _, v := range vals {
			switch typ {
			case "byte":
				b = append(b, byte(int8(v)))
			case "short":
				b = be.AppendUint16(b, uint16(int16(v)))
			case "int":
				b = be.AppendUint32(b, uint32(int32(v)))
			case "float":
				b = be.AppendUint32(b, math.Float32bits(float32(v)))
			case "double":
				b = be.AppendUint64(b, math.Float64bits(v))
			}
		}
		for (len(b)-start)%4 != 0 {
			b = append(b, 0)
		}
		return b
	}

	header := func(begins []int) []byte {
		b := []byte("CDF\x01")
		b = be.AppendUint32(b, uint32(numRecs))
		if len(dims) == 0 {
			b = be.AppendUint64(b, 0)
		} else {
			b = be.AppendUint32(b, 0x0A)
			b = be.AppendUint32(b, uint32(len(dims)))
			for _, d := range dims {
				b = writeName(b, d.Name)
				b = be.AppendUint32(b, uint32(d.Len))
			}
		}
		b = be.AppendUint64(b, 0) // no global attributes
		if len(vars) == 0 {
			return be.AppendUint64(b, 0)
		}
		b = be.AppendUint32(b, 0x0B)
		b = be.AppendUint32(b, uint32(len(vars)))
		for i, v := range vars {
			b = writeName(b, v.Name)
			b = be.AppendUint32(b, uint32(len(v.Dims)))
			for _, dn := range v.Dims {
				b = be.AppendUint32(b, uint32(dimIndex[dn]))
			}
			if len(v.Attrs) == 0 {
				b = be.AppendUint64(b, 0)
			} else {
				names := make([]string, 0, len(v.Attrs))
				for k := range v.Attrs {
					names = append(names, k)
				}
				sort.Strings(names)
				b = be.AppendUint32(b, 0x0C)
				b = be.AppendUint32(b, uint32(len(names)))
				for _, k := range names {
					b = writeName(b, k)
					b = be.AppendUint32(b, ncTypes["double"].code)
					b = be.AppendUint32(b, uint32(len(v.Attrs[k])))
					b = writeValues(b, "double", v.Attrs[k])
				}
			}
			b = be.AppendUint32(b, ncTypes[v.Type].code)
			b = be.AppendUint32(b, uint32(vsize(i)))
			b = be.AppendUint32(b, uint32(begins[i]))
		}
		return b
	}

	begins := make([]int, len(vars))
	off := len(header(begins))
	for i := range vars {
		if !lays[i].isRecord {
			begins[i] = off
			off += pad(lays[i].slab)
		}
	}
	for i := range vars {
		if lays[i].isRecord {
			begins[i] = off
			off += vsize(i)
		}
	}

	out := header(begins)
	for i, v := range vars {
		if !lays[i].isRecord {
			out = writeValues(out, v.Type, v.Values)
		}
	}
	for r := 0; r < numRecs; r++ {
		for i, v := range vars {
			if !lays[i].isRecord {
				continue
			}
			per := lays[i].slab / ncTypes[v.Type].size
			rec := v.Values[r*per : (r+1)*per]
			start := len(out)
			out = writeValues(out, v.Type, rec)
			// A lone record variable is stored without padding.
			out = out[:start+vsize(i)]
		}
	}
	return out, nil
}

// OversizedNetCDF encodes a CDF-1 header whose "year" variable claims a
// dimLen x dimLen grid of doubles while the file carries no data at all.
func OversizedNetCDF(dimLen uint32) []byte {
	be := binary.BigEndian
	name := func(b []byte, s string) []byte {
		b = be.AppendUint32(b, uint32(len(s)))
		b = append(b, s...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		return b
	}

	b := []byte("CDF\x01")
	b = be.AppendUint32(b, 0)
	b = be.AppendUint32(b, 0x0A)
	b = be.AppendUint32(b, 2)
	b = name(b, "y")
	b = be.AppendUint32(b, dimLen)
	b = name(b, "x")
	b = be.AppendUint32(b, dimLen)
	b = be.AppendUint64(b, 0) // no global attributes
	b = be.AppendUint32(b, 0x0B)
	b = be.AppendUint32(b, 1)
	b = name(b, "year")
	b = be.AppendUint32(b, 2)
	b = be.AppendUint32(b, 0)
	b = be.AppendUint32(b, 1)
	b = be.AppendUint64(b, 0) // no attributes
	b = be.AppendUint32(b, ncTypes["double"].code)
	b = be.AppendUint32(b, 0)
	return be.AppendUint32(b, uint32(len(b)+4))
}
