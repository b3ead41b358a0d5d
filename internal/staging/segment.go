package staging

import "fmt"

// Segment is one tile of a 2D array. Position is the (x, y) offset of the
// tile's top-left cell.
type Segment struct {
	Data     *Array `json:"data"`
	Position [2]int `json:"position"`
	Shape    []int  `json:"shape"`
}

// SegmentArray tiles a 2D array into size x size chunks, row by row. Tiles on
// the right and bottom edges may be smaller.
func SegmentArray(arr *Array, size int) ([]Segment, error) {
	if arr.Dims() != 2 {
		return nil, fmt.Errorf("segmenting needs a 2D array, got %d dimensions", arr.Dims())
	}
	if size <= 0 {
		return nil, fmt.Errorf("segment size must be positive, got %d", size)
	}
	height, width := arr.Shape[0], arr.Shape[1]

	var segs []Segment
	for y := 0; y < height; y += size {
		for x := 0; x < width; x += size {
			h := min(size, height-y)
			w := min(size, width-x)
			vals := make([]float64, 0, h*w)
			for r := y; r < y+h; r++ {
				row := arr.Values[r*width : r*width+width]
				vals = append(vals, row[x:x+w]...)
			}
			segs = append(segs, Segment{
				Data:     &Array{Shape: []int{h, w}, Values: vals},
				Position: [2]int{x, y},
				Shape:    []int{h, w},
			})
		}
	}
	return segs, nil
}
