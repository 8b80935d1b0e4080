package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

// handleUpload streams a multipart "file" part to a temp file, checks that it
// looks like an OOXML workbook and hands it to the pipeline. An optional
// "title" part names the upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+64*1024)
	mr, err := r.MultipartReader()
	if err != nil {
		respondJSON(w, http.StatusBadRequest, pipeline.Result{Message: "expecting multipart form"})
		return
	}
	title, part, err := readParts(mr)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, pipeline.Result{Message: err.Error()})
		return
	}
	defer part.Close()
	if !pipeline.SupportedWorkbook(part.FileName()) {
		s.respondError(w, pipeline.ErrUnsupportedFormat)
		return
	}
	tmp, err := s.persistTemp(part)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, pipeline.Result{Message: err.Error()})
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	// OOXML workbooks are zip containers.
	if tmp.contentType != "application/zip" {
		s.respondError(w, pipeline.ErrUnsupportedFormat)
		return
	}

	f, err := s.pipe.Upload(r.Context(), pipeline.UploadRequest{
		Owner:       owner(r),
		Title:       title,
		Name:        tmp.filename,
		Size:        tmp.size,
		ContentType: part.Header.Get("Content-Type"),
		Body:        tmp.f,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

// readParts collects the title field and stops at the file part.
func readParts(mr *multipart.Reader) (string, *multipart.Part, error) {
	var title string
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil, errors.New("missing file part")
			}
			return "", nil, err
		}
		switch part.FormName() {
		case "file":
			return title, part, nil
		case "title":
			b, err := io.ReadAll(io.LimitReader(part, 1024))
			part.Close()
			if err != nil {
				return "", nil, err
			}
			title = strings.TrimSpace(string(b))
		default:
			part.Close()
		}
	}
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "imagefilter-*.xlsx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) (*tempUpload, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxUploadBytes {
				return fail(fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxUploadBytes))
			}
			if len(sniff) < 512 {
				chunk := min(n, 512-len(sniff))
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fail(fmt.Errorf("read file: %w", readErr))
		}
	}
	if written == 0 {
		return fail(errors.New("empty file"))
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewind temp file: %w", err))
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
		filename:    part.FileName(),
	}, nil
}
