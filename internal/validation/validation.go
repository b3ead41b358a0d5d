// Package validation checks uploads and request bodies before anything is stored.
package validation

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/urban-yield/urban-api/internal/staging"
	"github.com/urban-yield/urban-api/pkg/models"
)

var (
	TIFFExtensions   = []string{".tif", ".tiff"}
	NetCDFExtensions = []string{".nc", ".netcdf"}
)

// ErrInvalid marks rejected input. The error text is the message shown to
// the client.
var ErrInvalid = errors.New("invalid input")

type invalidError struct {
	msg string
}

func (e *invalidError) Error() string        { return e.msg }
func (e *invalidError) Is(target error) bool { return target == ErrInvalid }

// Invalid returns an ErrInvalid error with the given client message.
func Invalid(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

// CheckTIFF rejects filenames without a TIFF extension.
func CheckTIFF(filename string) error {
	if !hasExtension(filename, TIFFExtensions) {
		return Invalid("File must be a TIFF file. Allowed extensions: %s", strings.Join(TIFFExtensions, ", "))
	}
	return nil
}

// CheckNetCDF rejects filenames without a NetCDF extension.
func CheckNetCDF(filename string) error {
	if !hasExtension(filename, NetCDFExtensions) {
		return Invalid("File must be a NetCDF file. Allowed extensions: %s", strings.Join(NetCDFExtensions, ", "))
	}
	return nil
}

// CheckClimateType rejects anything but temperature or precipitation.
func CheckClimateType(t string) error {
	if !models.IsClimateType(t) {
		return Invalid("Type must be either 'temperature' or 'precipitation'")
	}
	return nil
}

func hasExtension(filename string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// TIFFMetadata summarizes an uploaded raster.
type TIFFMetadata struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	CRS    string    `json:"crs"`
	Bounds []float64 `json:"bounds"`
	Count  int       `json:"count"`
	DType  string    `json:"dtype"`
}

// ReadTIFFMetadata reads layout and georeference information from r.
// Unreadable input is an ErrInvalid.
func ReadTIFFMetadata(r io.ReaderAt) (*TIFFMetadata, error) {
	info, err := staging.ReadGeoInfo(r)
	if err != nil {
		return nil, Invalid("Error reading TIFF file: %v", err)
	}
	return &TIFFMetadata{
		Width:  info.Width,
		Height: info.Height,
		CRS:    info.CRS,
		Bounds: info.Bounds,
		Count:  info.Count,
		DType:  info.DType,
	}, nil
}

// NetCDFYears returns the values of a "year" or "years" variable in r.
// It is best effort: unreadable input or a missing variable gives an empty list.
func NetCDFYears(r io.ReaderAt) []int {
	years := []int{}

	ds, err := staging.ReadDataset(r)
	if err != nil {
		return years
	}

	for _, v := range ds.Vars {
		name := strings.ToLower(v.Name)
		if name != "year" && name != "years" {
			continue
		}
		arr, err := ds.Read(v)
		if err != nil {
			return years
		}
		for _, y := range arr.Values {
			if math.IsNaN(y) || math.IsInf(y, 0) {
				continue
			}
			years = append(years, int(math.Round(y)))
		}
		return years
	}
	return years
}
