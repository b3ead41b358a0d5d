package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/urban-yield/urban-api/internal/api/response"
	"github.com/urban-yield/urban-api/internal/validation"
	"github.com/urban-yield/urban-api/pkg/models"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// FileSaver stores uploaded content under a fresh id.
type FileSaver interface {
	Save(ctx context.Context, r io.Reader, filename, subdir string) (path, id string, err error)
}

// NewUploadUrbanHandler returns an http.HandlerFunc for POST /api/upload/urban.
func NewUploadUrbanHandler(files FileSaver, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, hdr, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}
		defer file.Close()

		if err := validation.CheckTIFF(hdr.Filename); err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		year, ok := optionalYear(w, r)
		if !ok {
			return
		}

		md, err := validation.ReadTIFFMetadata(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		id, ok := save(w, r, files, file, hdr.Filename, models.KindUrban)
		if !ok {
			return
		}
		slog.Info("urban upload stored", "id", id, "width", md.Width, "height", md.Height, "crs", md.CRS)

		var region *string
		if v := strings.TrimSpace(r.FormValue("region")); v != "" {
			region = &v
		}
		response.JSON(w, models.UrbanExpansionData{
			ID:         id,
			Filename:   hdr.Filename,
			UploadedAt: time.Now().UTC(),
			Year:       year,
			Region:     region,
		})
	}
}

// NewUploadClimateHandler returns an http.HandlerFunc for POST /api/upload/climate.
func NewUploadClimateHandler(files FileSaver, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, hdr, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}
		defer file.Close()

		climateType := r.FormValue("type")
		if err := validation.CheckClimateType(climateType); err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.CheckNetCDF(hdr.Filename); err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		year, ok := optionalYear(w, r)
		if !ok {
			return
		}

		id, ok := save(w, r, files, file, hdr.Filename, models.KindClimate)
		if !ok {
			return
		}
		slog.Info("climate upload stored", "id", id, "type", climateType)

		response.JSON(w, models.ClimateData{
			ID:         id,
			Filename:   hdr.Filename,
			Type:       climateType,
			UploadedAt: time.Now().UTC(),
			Year:       year,
		})
	}
}

// NewUploadHistoricalYieldsHandler returns an http.HandlerFunc for
// POST /api/upload/historical-yields.
func NewUploadHistoricalYieldsHandler(files FileSaver, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, hdr, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}
		defer file.Close()

		if err := validation.CheckNetCDF(hdr.Filename); err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		years := validation.NetCDFYears(file)

		id, ok := save(w, r, files, file, hdr.Filename, models.KindHistoricalYield)
		if !ok {
			return
		}
		slog.Info("historical yield upload stored", "id", id, "years", len(years))

		response.JSON(w, models.HistoricalYieldData{
			ID:         id,
			Filename:   hdr.Filename,
			UploadedAt: time.Now().UTC(),
			Years:      years,
		})
	}
}

// readUpload parses the multipart body and opens its "file" part.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "File exceeds the maximum upload size")
			return nil, nil, false
		}
		response.Error(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, nil, false
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "file is required")
		return nil, nil, false
	}
	return file, hdr, true
}

func optionalYear(w http.ResponseWriter, r *http.Request) (*int, bool) {
	v := strings.TrimSpace(r.FormValue("year"))
	if v == "" {
		return nil, true
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "year must be an integer")
		return nil, false
	}
	return &year, true
}

// save rewinds file and stores it. A storage failure is a 500.
func save(w http.ResponseWriter, r *http.Request, files FileSaver, file multipart.File, filename, subdir string) (string, bool) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		response.Internal(w, err)
		return "", false
	}
	_, id, err := files.Save(r.Context(), file, filename, subdir)
	if err != nil {
		slog.Error("failed to store upload", "subdir", subdir, "error", err)
		response.Internal(w, err)
		return "", false
	}
	return id, true
}
