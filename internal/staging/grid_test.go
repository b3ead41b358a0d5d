package staging_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urban-yield/urban-api/internal/staging"
	"github.com/urban-yield/urban-api/internal/testutil"
)

func TestSelectVariable(t *testing.T) {
	tests := []struct {
		name     string
		vars     []string
		hint     string
		override string
		want     string
	}{
		{"substring of variable", []string{"lat_bnds", "air_temperature"}, "temperature", "", "air_temperature"},
		{"variable inside hint", []string{"x", "temp"}, "temperature", "", "temp"},
		{"case insensitive", []string{"PRECIPITATION_RATE"}, "precipitation", "", "PRECIPITATION_RATE"},
		{"first match in order", []string{"precip_a", "precip_b"}, "precipitation", "", "precip_a"},
		{"fallback to first", []string{"t2m", "tp"}, "temperature", "", "t2m"},
		{"override wins", []string{"temperature", "t2m"}, "temperature", "t2m", "t2m"},
		{"absent override ignored", []string{"temperature"}, "temperature", "t2m", "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := staging.SelectVariable(tt.vars, tt.hint, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectVariable_NoVariables(t *testing.T) {
	_, err := staging.SelectVariable(nil, "temperature", "")
	assert.ErrorIs(t, err, staging.ErrNoVariable)
}

func TestStageGridSeries_FirstSliceOf3D(t *testing.T) {
	path := writeFile(t, "climate.nc", climateFile(t))

	gd, err := staging.New().StageGridSeries(path, "temperature")
	require.NoError(t, err)

	// Neither data variable matches "temperature", so the first one is used.
	assert.Equal(t, "t2m", gd.Variable)
	assert.Equal(t, []int{2, 3}, gd.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, gd.Data.Values)
}

func TestStageGridSeries_Override(t *testing.T) {
	path := writeFile(t, "climate.nc", climateFile(t))
	s := staging.New(staging.WithVariableOverrides(map[string]string{"Precipitation": "tp"}))

	gd, err := s.StageGridSeries(path, "precipitation")
	require.NoError(t, err)
	assert.Equal(t, "tp", gd.Variable)
}

func TestStageGridSeries_TwoDimensionalUntouched(t *testing.T) {
	data, err := testutil.NetCDF(0,
		[]testutil.NCDim{{Name: "lat", Len: 2}, {Name: "lon", Len: 2}},
		[]testutil.NCVar{{Name: "yield", Dims: []string{"lat", "lon"}, Type: "double", Values: []float64{3.5, 4, 2.25, 1}}})
	require.NoError(t, err)

	gd, err := staging.New().StageGridSeries(writeFile(t, "yields.nc", data), "yield")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, gd.Shape)
	// Gridded data is never normalized.
	assert.Equal(t, []float64{3.5, 4, 2.25, 1}, gd.Data.Values)
}

func TestStageGridSeries_NoDataVariables(t *testing.T) {
	data, err := testutil.NetCDF(0,
		[]testutil.NCDim{{Name: "lat", Len: 2}},
		[]testutil.NCVar{{Name: "lat", Dims: []string{"lat"}, Type: "float", Values: []float64{1, 2}}})
	require.NoError(t, err)

	_, err = staging.New().StageGridSeries(writeFile(t, "coords.nc", data), "temperature")
	assert.ErrorIs(t, err, staging.ErrNoVariable)
}

func TestAssembleModelInput_JSON(t *testing.T) {
	urban := &staging.RasterData{
		Data:      &staging.Array{Shape: []int{1, 1}, Values: []float64{0.5}},
		Shape:     []int{1, 1},
		Transform: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		CRS:       "None",
		Bounds:    []float64{0, 1, 1, 0},
	}
	grid := &staging.GridData{Data: &staging.Array{Shape: []int{1}, Values: []float64{2}}, Shape: []int{1}, Variable: "t"}

	b, err := json.Marshal(staging.AssembleModelInput(urban, grid, grid, nil))
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Len(t, got, 4)
	assert.JSONEq(t, `null`, string(got["historical_yields"]))
	assert.JSONEq(t, `{"data":[2],"shape":[1],"variable":"t"}`, string(got["temperature"]))
	assert.JSONEq(t, `{"data":[[0.5]],"shape":[1,1],"transform":[1,0,0,0,1,0,0,0,1],"crs":"None","bounds":[0,1,1,0]}`,
		string(got["urban_expansion"]))
}

func TestSegmentArray(t *testing.T) {
	arr, err := staging.NewArray([]int{3, 3}, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)

	segs, err := staging.SegmentArray(arr, 2)
	require.NoError(t, err)
	require.Len(t, segs, 4)

	assert.Equal(t, [2]int{0, 0}, segs[0].Position)
	assert.Equal(t, []float64{1, 2, 4, 5}, segs[0].Data.Values)
	assert.Equal(t, [2]int{2, 0}, segs[1].Position)
	assert.Equal(t, []int{2, 1}, segs[1].Shape)
	assert.Equal(t, []float64{3, 6}, segs[1].Data.Values)
	assert.Equal(t, [2]int{0, 2}, segs[2].Position)
	assert.Equal(t, []float64{7, 8}, segs[2].Data.Values)
	assert.Equal(t, []float64{9}, segs[3].Data.Values)
}

func TestSegmentArray_Rejects(t *testing.T) {
	arr, err := staging.NewArray([]int{4}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = staging.SegmentArray(arr, 2)
	assert.Error(t, err)

	arr2, err := staging.NewArray([]int{1, 1}, []float64{1})
	require.NoError(t, err)
	_, err = staging.SegmentArray(arr2, 0)
	assert.Error(t, err)
}
