package app

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"legalease/api/internal/extract"
)

const multipartMemory = 8 << 20

// readFormFile parses a multipart body capped at limit bytes and returns the
// named file part. The header is checked by the caller before the body is
// read, so oversize files fail without buffering them.
func readFormFile(w http.ResponseWriter, r *http.Request, field string, limit int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, errBodyTooLarge
		}
		return nil, nil, errBadMultipart
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errBadMultipart
	}
	return file, header, nil
}

var (
	errBodyTooLarge = errors.New("request body too large")
	errBadMultipart = errors.New("invalid multipart form")
)

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := readFormFile(w, r, "file", extract.MaxUploadSize+multipartMemory)
	switch {
	case errors.Is(err, errBodyTooLarge):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", extract.ErrTooLarge.Error(), nil)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	userID := r.FormValue("userId")
	if file == nil || (userID == "" && !s.service.hasCaller(r.Context())) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing file or userId", nil)
		return
	}
	defer file.Close()

	if _, err := extract.Validate(header.Filename, header.Size); err != nil {
		writeFailure(w, r, uploadError(err))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read uploaded file", nil)
		return
	}

	result, err := s.service.Upload(r.Context(), UploadInput{
		UserID:   userID,
		Title:    r.FormValue("title"),
		FileName: header.Filename,
		Data:     data,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLogoUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := readFormFile(w, r, "logo", MaxLogoSize+multipartMemory)
	switch {
	case errors.Is(err, errBodyTooLarge):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Logo too large (max 5MB)", nil)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	userID := r.FormValue("userId")
	if file == nil || (userID == "" && !s.service.hasCaller(r.Context())) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing logo or userId", nil)
		return
	}
	defer file.Close()

	if header.Size > MaxLogoSize {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Logo too large (max 5MB)", nil)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read uploaded file", nil)
		return
	}

	result, err := s.service.UploadLogo(r.Context(), LogoUploadInput{
		UserID:      userID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
