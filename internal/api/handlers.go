package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, fileFrom(r))
}

// handleAction serves the request-only pipeline operations. Accepted work is
// answered with 202; a refused transition with 409.
func (s *Server) handleAction(op func(ctx context.Context, fileID string) pipeline.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := op(r.Context(), fileFrom(r).ID)
		status := http.StatusAccepted
		if !res.OK {
			status = http.StatusConflict
		}
		respondJSON(w, status, res)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res := s.pipe.RequestDelete(r.Context(), fileFrom(r).ID)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	respondJSON(w, status, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipe.Summary(r.Context(), fileFrom(r).ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.pipe.ProductSummaries(r.Context(), fileFrom(r).ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// handleImages lists images, optionally filtered with ?type=excluded,failed.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	q := model.ImageQuery{FileID: fileFrom(r).ID, ProductID: r.URL.Query().Get("product")}
	if raw := r.URL.Query().Get("type"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			t, err := model.ParseImageType(name)
			if err != nil {
				respondJSON(w, http.StatusBadRequest, pipeline.Result{Message: err.Error()})
				return
			}
			q.Types = append(q.Types, t)
		}
	}
	images, err := s.pipe.Images(r.Context(), q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if images == nil {
		images = []model.Image{}
	}
	respondJSON(w, http.StatusOK, images)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f := fileFrom(r)
	if s.signer == nil {
		url, err := s.pipe.GeneratedURL(r.Context(), f.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}
	if f.Status != model.StatusGenerated || !f.Generated() {
		s.respondError(w, pipeline.ErrNotGenerated)
		return
	}
	token, err := s.signer.Sign(f.ID, s.cfg.SignedURLTTL)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": "/downloads/" + token})
}

func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		http.NotFound(w, r)
		return
	}
	fileID, err := s.signer.Verify(chi.URLParam(r, "token"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	data, name, err := s.pipe.GeneratedFile(r.Context(), fileID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

type overrideRequest struct {
	Type model.ImageType `json:"type"`
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	f, err := s.pipe.FileOfImage(r.Context(), imageID)
	if err == nil && owner(r) != "" && !f.OwnedBy(owner(r)) {
		err = model.ErrImageNotFound
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, pipeline.Result{Message: fmt.Sprintf("invalid body: %v", err)})
		return
	}
	res := s.pipe.OverrideImageType(r.Context(), imageID, req.Type)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	respondJSON(w, status, res)
}
