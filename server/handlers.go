package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/document"
	"github.com/joeychilson/pdfworks/pagerange"
	"github.com/joeychilson/pdfworks/queue"
	"github.com/joeychilson/pdfworks/ratelimit"
	"github.com/joeychilson/pdfworks/render"
	"github.com/joeychilson/pdfworks/server/middleware"
	"github.com/joeychilson/pdfworks/service"
	"github.com/joeychilson/pdfworks/textextract"
	"github.com/joeychilson/pdfworks/upload"
)

const (
	missingRangesMessage = "Missing or invalid 'ranges' parameter. Format: '1-5,7,9-12'"

	// multipartMemory is the part of a form kept in memory before spilling
	// to disk.
	multipartMemory = 32 << 20
)

var errBadForm = errors.New("invalid multipart form")

// FilePayload is one file of a multi-file JSON response.
type FilePayload struct {
	Data     string `json:"data"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

// FilesResponse is the JSON body returned when an operation produces more
// than one file.
type FilesResponse struct {
	Message    string        `json:"message"`
	Ranges     string        `json:"ranges,omitempty"`
	TotalPages int           `json:"totalPages,omitempty"`
	Files      []FilePayload `json:"files,omitempty"`
	Images     []FilePayload `json:"images,omitempty"`
}

// handleMerge handles POST /api/pdf/merge requests.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	batch, ok := s.saveFiles(w, r, "files", upload.KindPDF)
	if !ok {
		return
	}
	defer batch.Cleanup()

	inputs, err := batch.Bytes()
	if err != nil {
		s.fail(w, r, config.OpMerge, err)
		return
	}
	out, err := s.svc.Merge(r.Context(), inputs)
	if err != nil {
		s.fail(w, r, config.OpMerge, err)
		return
	}
	s.sendOutput(w, out, config.OpMerge)
}

// handleSplit handles POST /api/pdf/split requests.
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}

	pagesPerSplit := 1
	if v := strings.TrimSpace(r.FormValue("pagesPerSplit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.sendError(w, "pagesPerSplit must be a positive integer", http.StatusBadRequest)
			return
		}
		pagesPerSplit = n
	}

	input, cleanup, ok := s.saveOne(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.svc.Split(r.Context(), input, pagesPerSplit)
	if err != nil {
		s.fail(w, r, config.OpSplit, err)
		return
	}
	s.sendOutput(w, out, config.OpSplit)
}

// handleSplitByRanges handles POST /api/pdf/split-by-ranges requests.
func (s *Server) handleSplitByRanges(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}

	ranges := strings.TrimSpace(r.FormValue("ranges"))
	if ranges == "" {
		s.sendError(w, missingRangesMessage, http.StatusBadRequest)
		return
	}
	policy := pagerange.Lenient
	if strict, _ := strconv.ParseBool(r.FormValue("strict")); strict {
		policy = pagerange.Strict
	}

	input, cleanup, ok := s.saveOne(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.svc.SplitByRanges(r.Context(), input, ranges, policy)
	if err != nil {
		s.fail(w, r, config.OpSplitByRanges, err)
		return
	}
	s.sendOutput(w, out, config.OpSplitByRanges)
}

// handleCompress handles POST /api/pdf/compress requests.
func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	input, cleanup, ok := s.saveOne(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.svc.Compress(r.Context(), input)
	if err != nil {
		s.fail(w, r, config.OpCompress, err)
		return
	}
	s.sendOutput(w, out, config.OpCompress)
}

// handleInfo handles POST /api/pdf/info requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	input, cleanup, ok := s.saveOne(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.svc.Info(r.Context(), input)
	if err != nil {
		s.fail(w, r, config.OpInfo, err)
		return
	}
	s.sendOutput(w, out, config.OpInfo)
}

// handleToImages handles POST /api/pdf/convert-to-images requests.
func (s *Server) handleToImages(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	opts, err := service.ImageOptionsFromParams(formParams(r))
	if err != nil {
		s.fail(w, r, config.OpToImages, err)
		return
	}

	input, cleanup, ok := s.saveOne(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.svc.ToImages(r.Context(), input, opts)
	if err != nil {
		s.fail(w, r, config.OpToImages, err)
		return
	}
	s.sendOutput(w, out, config.OpToImages)
}

// handleToText handles POST /api/pdf/convert-to-text requests. Clients
// sending Accept: text/plain receive extracted.txt instead of JSON.
func (s *Server) handleToText(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	input, cleanup, ok := s.saveOne(w, r)
	if !ok {
		return
	}
	defer cleanup()

	out, err := s.svc.ToText(r.Context(), input)
	if err != nil {
		s.fail(w, r, config.OpToText, err)
		return
	}
	s.sendText(w, r, out)
}

// handleImagesToPDF handles POST /api/pdf/images-to-pdf requests.
func (s *Server) handleImagesToPDF(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	batch, ok := s.saveFiles(w, r, "files", upload.KindImage)
	if !ok {
		return
	}
	defer batch.Cleanup()

	images := make([]document.Image, 0, len(batch.Files))
	for _, f := range batch.Files {
		data, err := f.Bytes()
		if err != nil {
			s.fail(w, r, config.OpImagesToPDF, err)
			return
		}
		images = append(images, document.Image{Name: f.Name, Data: data})
	}

	out, err := s.svc.ImagesToPDF(r.Context(), images)
	if err != nil {
		s.fail(w, r, config.OpImagesToPDF, err)
		return
	}
	s.sendOutput(w, out, config.OpImagesToPDF)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":   "ok",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  s.version,
		"redis":    "disabled",
		"renderer": render.Available(),
	}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis health check failed", "error", err)
			health["redis"] = "unavailable"
			health["status"] = "degraded"
		} else {
			health["redis"] = "connected"
		}
	}
	if s.queue != nil {
		health["pendingJobs"] = s.queue.Pending()
	}

	s.sendJSON(w, health, http.StatusOK)
}

// handleStatic serves the single-page frontend from static_dir. Paths that
// do not name a file fall back to index.html.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.sendError(w, "not found", http.StatusNotFound)
		return
	}

	root := s.cfg.Server.StaticDir
	name := filepath.Join(root, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}

	index := filepath.Join(root, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.sendError(w, "not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, index)
}

// parseForm bounds the request body and parses the multipart form. It
// writes the error reply and returns false on failure.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	sc := s.cfg.Server
	limit := sc.GetMaxUploadSize()*int64(sc.GetMaxFiles()) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		s.sendError(w, fmt.Errorf("%w: %v", errBadForm, err).Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// saveFiles stores every file under field. It writes the error reply and
// returns false on failure.
func (s *Server) saveFiles(w http.ResponseWriter, r *http.Request, field string, kind upload.Kind) (*upload.Batch, bool) {
	batch, err := s.uploads.SaveAll(r.MultipartForm, field, kind, 1)
	if err != nil {
		s.rejectUpload(w, r, kind, err)
		return nil, false
	}
	return batch, true
}

// saveOne stores the single PDF under "file" and returns its content.
func (s *Server) saveOne(w http.ResponseWriter, r *http.Request) ([]byte, func(), bool) {
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.rejectUpload(w, r, upload.KindPDF, upload.ErrNoFiles)
		return nil, nil, false
	}

	f, err := s.uploads.Save(headers[0], upload.KindPDF)
	if err != nil {
		s.rejectUpload(w, r, upload.KindPDF, err)
		return nil, nil, false
	}
	cleanup := func() {
		if err := f.Remove(); err != nil {
			s.logger.Warn("failed to remove upload", "path", f.Path, "error", err)
		}
		r.MultipartForm.RemoveAll()
	}

	data, err := f.Bytes()
	if err != nil {
		cleanup()
		s.fail(w, r, "read upload", err)
		return nil, nil, false
	}
	return data, cleanup, true
}

func (s *Server) rejectUpload(w http.ResponseWriter, r *http.Request, kind upload.Kind, err error) {
	if errors.Is(err, upload.ErrNoFiles) {
		if kind == upload.KindImage {
			s.sendError(w, "No image files provided", http.StatusBadRequest)
		} else {
			s.sendError(w, "No PDF file provided", http.StatusBadRequest)
		}
		return
	}
	s.logger.WithContext(r.Context()).Info("upload rejected", "kind", kind, "error", err)
	s.sendError(w, err.Error(), statusFor(err))
}

// fail logs err and writes the matching error reply.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := s.logger.WithContext(r.Context()).With("operation", op)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("operation failed", "error", err, "status", status)
		msg = fmt.Sprintf("failed to %s: %v", op, err)
	} else {
		log.Info("request rejected", "error", err, "status", status)
	}
	s.sendError(w, msg, status)
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	var syntaxErr *pagerange.SyntaxError

	switch {
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedType),
		errors.Is(err, upload.ErrNoFiles),
		errors.Is(err, upload.ErrTooManyFiles),
		errors.Is(err, document.ErrNoPages),
		errors.Is(err, document.ErrNoInput),
		errors.Is(err, document.ErrUnsupportedImage),
		errors.Is(err, render.ErrNoPages),
		errors.Is(err, render.ErrInvalidFormat),
		errors.Is(err, render.ErrTooManyPages),
		errors.Is(err, service.ErrInvalidParameter),
		errors.Is(err, errBadForm),
		errors.As(err, &syntaxErr):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrInvalidPDF),
		errors.Is(err, textextract.ErrUnreadable),
		errors.Is(err, render.ErrUnreadable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrJobNotReady):
		return http.StatusConflict
	case errors.Is(err, queue.ErrQueueFull),
		errors.Is(err, queue.ErrClosed),
		errors.Is(err, ratelimit.ErrClosed),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sendOutput writes a single-document output as an attachment and a
// multi-file output as JSON with base64 payloads.
func (s *Server) sendOutput(w http.ResponseWriter, out *service.Output, op string) {
	if out.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	if len(out.Files) > 0 && out.Body == nil {
		payload := make([]FilePayload, len(out.Files))
		for i, f := range out.Files {
			payload[i] = FilePayload{
				Data:     base64.StdEncoding.EncodeToString(f.Data),
				Filename: f.Name,
				Size:     len(f.Data),
			}
		}

		resp := FilesResponse{Message: out.Message()}
		switch op {
		case config.OpToImages:
			resp.Images = payload
			resp.TotalPages = int(out.MetaInt("totalPages"))
		case config.OpSplitByRanges:
			resp.Files = payload
			resp.Ranges = out.Meta["ranges"]
		default:
			resp.Files = payload
		}
		s.sendJSON(w, resp, http.StatusOK)
		return
	}

	if op == config.OpCompress {
		w.Header().Set("X-Original-Size", out.Meta["originalSize"])
		w.Header().Set("X-Compressed-Size", out.Meta["compressedSize"])
	}
	s.sendBody(w, out.ContentType, out.Filename, out.Body)
}

// sendText writes a convert-to-text output, honoring Accept: text/plain.
func (s *Server) sendText(w http.ResponseWriter, r *http.Request, out *service.Output) {
	if strings.Contains(r.Header.Get("Accept"), "text/plain") && len(out.Files) > 0 {
		f := out.Files[0]
		s.sendBody(w, f.ContentType, f.Name, f.Data)
		return
	}
	s.sendBody(w, out.ContentType, "", out.Body)
}

func (s *Server) sendBody(w http.ResponseWriter, contentType, filename string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	if filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError sends an error response.
func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, middleware.ErrorResponse{
		Error:      message,
		StatusCode: statusCode,
	}, statusCode)
}

// formParams flattens the non-file form values, keeping the first value of
// each field.
func formParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	if r.MultipartForm == nil {
		return params
	}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			params[k] = strings.TrimSpace(v[0])
		}
	}
	return params
}
