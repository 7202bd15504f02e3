package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/dochighlight/internal/metadata"
	"github.com/dgallion1/dochighlight/internal/overview"
	"github.com/dgallion1/dochighlight/internal/pdfsource"
	"github.com/dgallion1/dochighlight/internal/raster"
	"github.com/dgallion1/dochighlight/internal/report"
	"github.com/dgallion1/dochighlight/internal/viewer"
	"github.com/go-chi/chi/v5"
)

// handleCreateDocument opens a view. The body is either the metadata JSON
// itself or a multipart form with a "metadata" part, a "pdf" part, or both.
// Without metadata the sentences are derived from the PDF text.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	var (
		metaData, pdfData []byte
		title, docID      string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		title = r.FormValue("title")
		docID = r.FormValue("doc_id")
		var err error
		if metaData, err = s.readPart(r, "metadata"); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		var header *multipart.FileHeader
		if _, header, err = r.FormFile("pdf"); err == nil && title == "" {
			title = strings.TrimSuffix(sanitizeFilename(header.Filename), filepath.Ext(header.Filename))
		}
		if pdfData, err = s.readPart(r, "pdf"); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		data, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxUploadBytes+1))
		if err != nil {
			jsonError(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			jsonError(w, fmt.Sprintf("body exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		metaData = data
		title = r.URL.Query().Get("title")
		docID = r.URL.Query().Get("doc_id")
	}

	if len(metaData) == 0 && len(pdfData) == 0 {
		jsonError(w, "metadata or pdf is required", http.StatusBadRequest)
		return
	}
	if docID != "" && s.registry.Get(docID) != nil {
		jsonError(w, fmt.Sprintf("document %q is already open", docID), http.StatusConflict)
		return
	}

	var src *pdfsource.Source
	if len(pdfData) > 0 {
		var err error
		if src, err = pdfsource.Open(pdfData); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var doc *metadata.Document
	if len(metaData) > 0 {
		var err error
		if doc, err = metadata.Decode(bytes.NewReader(metaData)); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		pages, errs := src.Pages()
		for _, err := range errs {
			s.log.Warn("pdf page text skipped", "error", err)
		}
		doc = metadata.FromRuns(pages)
		if doc.NumPages() == 0 {
			jsonError(w, "pdf has no extractable text", http.StatusBadRequest)
			return
		}
	}

	sizes := pageSizes(doc, src)
	v, err := viewer.New(viewer.Config{
		ID:            docID,
		Title:         title,
		Doc:           doc,
		Renderer:      raster.BlankRenderer{Sizes: sizes},
		Sizes:         sizes,
		Options:       s.cfg.Layout,
		RenderWidth:   s.cfg.RenderWidth,
		Overview:      overview.Size{Width: s.cfg.OverviewWidth, Height: s.cfg.OverviewHeight},
		SnapshotWidth: s.cfg.SnapshotWidth,
		Sink:          s.hub,
		Stats:         s.stats,
		Log:           s.log,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.registry.PutIfAbsent(v) {
		jsonError(w, fmt.Sprintf("document %q is already open", v.ID()), http.StatusConflict)
		return
	}
	s.log.Info("document opened", "doc_id", v.ID(), "pages", v.NumPages(), "from_pdf_text", len(metaData) == 0)

	writeJSON(w, http.StatusCreated, v.Info())
}

// readPart returns the named form file, or nil when the part is absent.
func (s *Server) readPart(r *http.Request, name string) ([]byte, error) {
	file, _, err := r.FormFile(name)
	if err == http.ErrMissingFile {
		if v := r.FormValue(name); v != "" {
			return []byte(v), nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s", name)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%s exceeds max size (%d bytes)", name, s.cfg.MaxUploadBytes)
	}
	return data, nil
}

// pageSizes prefers metadata sizes, then the PDF MediaBox, then US Letter.
func pageSizes(doc *metadata.Document, src *pdfsource.Source) raster.SizeFunc {
	return func(page int) (float64, float64, bool) {
		if w, h, ok := doc.PageSize(page); ok {
			return w, h, true
		}
		if src != nil {
			if w, h, err := src.PageSize(page); err == nil {
				return w, h, true
			}
		}
		return viewer.DefaultPageSize[0], viewer.DefaultPageSize[1], true
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.registry.List()})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Info())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if !s.registry.Delete(docID) {
		writeViewError(w, &viewer.NotFoundError{Kind: "document", ID: docID})
		return
	}
	s.hub.CloseDocument(docID)
	s.log.Info("document closed", "doc_id", docID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": docID})
}

// handleReport exports the view's links. format is md (default), html, docx
// or json.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	title := v.Info().Title
	if title == "" {
		title = v.ID()
	}
	rep := report.Build(title, v.Doc(), v.Links())

	switch format := r.URL.Query().Get("format"); format {
	case "", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, rep.Markdown())
	case "html":
		out, err := rep.HTML()
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(out)
	case "docx":
		var buf bytes.Buffer
		if err := rep.DOCX(&buf); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(title)+".docx"))
		w.Write(buf.Bytes())
	case "json":
		writeJSON(w, http.StatusOK, rep)
	default:
		jsonError(w, fmt.Sprintf("unsupported report format %q", format), http.StatusBadRequest)
	}
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
