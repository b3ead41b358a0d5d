package staging

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// NetCDF classic header markers.
const (
	ncDimension = 0x0A
	ncVariable  = 0x0B
	ncAttribute = 0x0C
)

// NetCDF classic external types.
const (
	ncByte   = 1
	ncChar   = 2
	ncShort  = 3
	ncInt    = 4
	ncFloat  = 5
	ncDouble = 6
)

var ncTypeSize = map[int32]int{ncByte: 1, ncChar: 1, ncShort: 2, ncInt: 4, ncFloat: 4, ncDouble: 8}

// ErrNotNetCDF is returned for input that is not a CDF-1 or CDF-2 file.
var ErrNotNetCDF = errors.New("not a NetCDF classic file")

// ErrCorrupt is returned when a header describes data the file cannot hold.
var ErrCorrupt = errors.New("corrupt NetCDF file")

// maxUnsizedBytes bounds variable extents when the input size is unknown.
const maxUnsizedBytes = 1 << 31

// Dimension is a named dataset dimension. The record dimension is Unlimited
// and its Len is the number of records.
type Dimension struct {
	Name      string
	Len       int
	Unlimited bool
}

// Variable describes one dataset variable. Attribute values are either a
// string (char attributes) or a []float64.
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Attrs map[string]any

	ncType int32
	begin  int64
	record bool
}

// IsCoordinate reports whether v is a coordinate variable: one-dimensional
// and named after its own dimension.
func (v *Variable) IsCoordinate() bool {
	return len(v.Dims) == 1 && v.Dims[0] == v.Name
}

// Dataset is an open NetCDF classic dataset. Variable data is read lazily.
type Dataset struct {
	Dims  []Dimension
	Attrs map[string]any
	Vars  []*Variable

	r       io.ReaderAt
	closer  io.Closer
	numRecs int
	recSize int64
}

// OpenDataset opens the NetCDF classic file at path.
func OpenDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ds, err := ReadDataset(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	ds.closer = f
	return ds, nil
}

// ReadDataset parses the header of a NetCDF classic dataset held by r.
// Every variable must lie within the input, whose size is taken from r's
// Size or Stat method when it has one.
func ReadDataset(r io.ReaderAt) (*Dataset, error) {
	h := &header{br: bufio.NewReader(io.NewSectionReader(r, 0, math.MaxInt64))}

	magic := h.bytes(4)
	if h.err != nil || string(magic[:3]) != "CDF" || (magic[3] != 1 && magic[3] != 2) {
		return nil, ErrNotNetCDF
	}
	offset64 := magic[3] == 2

	ds := &Dataset{r: r}
	numRecs := h.u32()
	if numRecs == math.MaxUint32 {
		return nil, fmt.Errorf("streaming record count is not supported")
	}
	ds.numRecs = int(numRecs)

	// Dimensions.
	tag, n := h.listHeader()
	if tag != 0 && tag != ncDimension {
		return nil, fmt.Errorf("%w: expected dimension list", ErrNotNetCDF)
	}
	for i := 0; i < n && h.err == nil; i++ {
		name := h.name()
		l := int(h.u32())
		d := Dimension{Name: name, Len: l}
		if l == 0 {
			d.Unlimited = true
			d.Len = ds.numRecs
		}
		ds.Dims = append(ds.Dims, d)
	}

	ds.Attrs = h.attrs()

	// Variables.
	tag, n = h.listHeader()
	if tag != 0 && tag != ncVariable {
		return nil, fmt.Errorf("%w: expected variable list", ErrNotNetCDF)
	}
	for i := 0; i < n && h.err == nil; i++ {
		v := &Variable{Name: h.name()}
		nd := int(h.u32())
		for j := 0; j < nd && h.err == nil; j++ {
			id := int(h.u32())
			if id < 0 || id >= len(ds.Dims) {
				return nil, fmt.Errorf("variable %q references unknown dimension %d", v.Name, id)
			}
			dim := ds.Dims[id]
			if dim.Unlimited && j == 0 {
				v.record = true
			}
			v.Dims = append(v.Dims, dim.Name)
			v.Shape = append(v.Shape, dim.Len)
		}
		v.Attrs = h.attrs()
		v.ncType = int32(h.u32())
		if _, ok := ncTypeSize[v.ncType]; !ok && h.err == nil {
			return nil, fmt.Errorf("variable %q has unknown type %d", v.Name, v.ncType)
		}
		h.u32() // vsize, recomputed below
		if offset64 {
			v.begin = int64(h.u64())
		} else {
			v.begin = int64(h.u32())
		}
		ds.Vars = append(ds.Vars, v)
	}
	if h.err != nil {
		return nil, fmt.Errorf("read NetCDF header: %w", h.err)
	}

	limit := int64(maxUnsizedBytes)
	if size, ok := readerSize(r); ok {
		limit = size
	}

	var recVars []*Variable
	for _, v := range ds.Vars {
		if _, err := v.checkedSlab(limit); err != nil {
			return nil, err
		}
		if v.record {
			recVars = append(recVars, v)
		}
	}
	for _, v := range recVars {
		slab := v.slabBytes()
		if len(recVars) > 1 {
			slab = pad4(slab)
		}
		if ds.recSize > limit-slab {
			return nil, fmt.Errorf("%w: record size exceeds %d bytes", ErrCorrupt, limit)
		}
		ds.recSize += slab
	}

	for _, v := range ds.Vars {
		if err := ds.checkExtent(v, limit); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// checkedSlab returns v's per-record (or total, for fixed variables) byte
// count, failing when it overflows or exceeds limit.
func (v *Variable) checkedSlab(limit int64) (int64, error) {
	dims := v.Shape
	if v.record {
		dims = dims[1:]
	}
	size := int64(ncTypeSize[v.ncType])
	n := size
	for _, d := range dims {
		if d < 0 || (d > 0 && n > limit/int64(d)) {
			return 0, fmt.Errorf("%w: variable %q is larger than %d bytes", ErrCorrupt, v.Name, limit)
		}
		n *= int64(d)
	}
	return n, nil
}

// checkExtent verifies that all of v's data ends within limit bytes.
func (d *Dataset) checkExtent(v *Variable, limit int64) error {
	slab := v.slabBytes()
	if v.begin < 0 || v.begin > limit-slab {
		return fmt.Errorf("%w: variable %q extends past the end of the file", ErrCorrupt, v.Name)
	}
	if !v.record || d.numRecs == 0 {
		return nil
	}
	room := limit - v.begin - slab
	if d.recSize > 0 && int64(d.numRecs-1) > room/d.recSize {
		return fmt.Errorf("%w: %d records of variable %q extend past the end of the file", ErrCorrupt, d.numRecs, v.Name)
	}
	return nil
}

// readerSize reports the byte length of r when r can tell it.
func readerSize(r io.ReaderAt) (int64, bool) {
	switch s := r.(type) {
	case interface{ Size() int64 }:
		return s.Size(), true
	case interface{ Stat() (os.FileInfo, error) }:
		fi, err := s.Stat()
		if err != nil {
			return 0, false
		}
		return fi.Size(), true
	}
	return 0, false
}

// Close releases the underlying file, if any.
func (d *Dataset) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Var returns the variable with the given name.
func (d *Dataset) Var(name string) (*Variable, bool) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// DataVars returns the non-coordinate variables in file order.
func (d *Dataset) DataVars() []*Variable {
	var out []*Variable
	for _, v := range d.Vars {
		if !v.IsCoordinate() {
			out = append(out, v)
		}
	}
	return out
}

// Read returns all of v's data with fill values masked to NaN and
// scale_factor / add_offset applied.
func (d *Dataset) Read(v *Variable) (*Array, error) {
	if !v.record {
		vals, err := d.readValues(v, v.begin, elements(v.Shape))
		if err != nil {
			return nil, err
		}
		return &Array{Shape: append([]int(nil), v.Shape...), Values: vals}, nil
	}

	per := elements(v.Shape[1:])
	vals := make([]float64, 0, per*d.numRecs)
	for i := 0; i < d.numRecs; i++ {
		rec, err := d.readValues(v, v.begin+int64(i)*d.recSize, per)
		if err != nil {
			return nil, err
		}
		vals = append(vals, rec...)
	}
	return &Array{Shape: append([]int(nil), v.Shape...), Values: vals}, nil
}

// ReadFirst returns the slice of v at index 0 along its first dimension
// without reading the rest of the variable.
func (d *Dataset) ReadFirst(v *Variable) (*Array, error) {
	if len(v.Shape) == 0 {
		return d.Read(v)
	}
	if v.Shape[0] == 0 {
		return nil, fmt.Errorf("variable %q has an empty %s dimension", v.Name, v.Dims[0])
	}
	vals, err := d.readValues(v, v.begin, elements(v.Shape[1:]))
	if err != nil {
		return nil, err
	}
	return &Array{Shape: append([]int(nil), v.Shape[1:]...), Values: vals}, nil
}

func (d *Dataset) readValues(v *Variable, off int64, n int) ([]float64, error) {
	size := ncTypeSize[v.ncType]
	raw := make([]byte, n*size)
	if got, err := d.r.ReadAt(raw, off); err != nil && !(errors.Is(err, io.EOF) && got == len(raw)) {
		return nil, fmt.Errorf("read variable %q: %w", v.Name, err)
	}

	out := make([]float64, n)
	be := binary.BigEndian
	for i := range out {
		b := raw[i*size:]
		switch v.ncType {
		case ncByte:
			out[i] = float64(int8(b[0]))
		case ncChar:
			out[i] = float64(b[0])
		case ncShort:
			out[i] = float64(int16(be.Uint16(b)))
		case ncInt:
			out[i] = float64(int32(be.Uint32(b)))
		case ncFloat:
			out[i] = float64(math.Float32frombits(be.Uint32(b)))
		case ncDouble:
			out[i] = math.Float64frombits(be.Uint64(b))
		}
	}
	v.decode(out)
	return out, nil
}

// decode applies CF masking and scaling in place.
func (v *Variable) decode(vals []float64) {
	var fills []float64
	for _, k := range []string{"_FillValue", "missing_value"} {
		if f, ok := v.Attrs[k].([]float64); ok {
			fills = append(fills, f...)
		}
	}
	scale, offset := 1.0, 0.0
	if f, ok := v.Attrs["scale_factor"].([]float64); ok && len(f) > 0 {
		scale = f[0]
	}
	if f, ok := v.Attrs["add_offset"].([]float64); ok && len(f) > 0 {
		offset = f[0]
	}
	for i, x := range vals {
		for _, f := range fills {
			if x == f {
				x = math.NaN()
				break
			}
		}
		vals[i] = x*scale + offset
	}
}

func (v *Variable) slabBytes() int64 {
	dims := v.Shape
	if v.record {
		dims = dims[1:]
	}
	return int64(elements(dims) * ncTypeSize[v.ncType])
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func pad4(n int64) int64 {
	return (n + 3) &^ 3
}

// header is a sticky-error reader over the big-endian header encoding.
type header struct {
	br  *bufio.Reader
	err error
}

func (h *header) bytes(n int) []byte {
	b := make([]byte, n)
	if h.err != nil {
		return b
	}
	_, h.err = io.ReadFull(h.br, b)
	return b
}

func (h *header) u32() uint32 {
	return binary.BigEndian.Uint32(h.bytes(4))
}

func (h *header) u64() uint64 {
	return binary.BigEndian.Uint64(h.bytes(8))
}

func (h *header) name() string {
	n := int(h.u32())
	if n < 0 || n > 1<<16 {
		h.fail(fmt.Errorf("name length %d out of range", n))
		return ""
	}
	b := h.bytes(int(pad4(int64(n))))
	return string(b[:n])
}

// listHeader reads a tag and element count. ABSENT decodes as (0, 0).
func (h *header) listHeader() (uint32, int) {
	tag := h.u32()
	n := h.u32()
	if n > 1<<20 {
		h.fail(fmt.Errorf("list length %d out of range", n))
		return 0, 0
	}
	return tag, int(n)
}

func (h *header) attrs() map[string]any {
	out := map[string]any{}
	tag, n := h.listHeader()
	if tag != 0 && tag != ncAttribute {
		h.fail(fmt.Errorf("%w: expected attribute list", ErrNotNetCDF))
		return out
	}
	for i := 0; i < n && h.err == nil; i++ {
		name := h.name()
		typ := int32(h.u32())
		cnt := int(h.u32())
		size, ok := ncTypeSize[typ]
		if !ok || cnt < 0 || cnt > 1<<24 {
			h.fail(fmt.Errorf("attribute %q is malformed", name))
			return out
		}
		raw := h.bytes(int(pad4(int64(cnt * size))))
		if typ == ncChar {
			out[name] = string(raw[:cnt])
			continue
		}
		vals := make([]float64, cnt)
		for j := range vals {
			b := raw[j*size:]
			switch typ {
			case ncByte:
				vals[j] = float64(int8(b[0]))
			case ncShort:
				vals[j] = float64(int16(binary.BigEndian.Uint16(b)))
			case ncInt:
				vals[j] = float64(int32(binary.BigEndian.Uint32(b)))
			case ncFloat:
				vals[j] = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
			case ncDouble:
				vals[j] = math.Float64frombits(binary.BigEndian.Uint64(b))
			}
		}
		out[name] = vals
	}
	return out
}

func (h *header) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}
