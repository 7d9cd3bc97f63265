package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joeychilson/pdfworks/cache"
	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/queue"
	"github.com/joeychilson/pdfworks/retry"
	"github.com/joeychilson/pdfworks/service"
	"github.com/joeychilson/pdfworks/upload"
)

// JobHandler runs queued tasks through svc. Errors that map to a client
// status are not retried.
func JobHandler(svc *service.Service) queue.Handler {
	return func(ctx context.Context, task queue.Task) (*cache.Entry, error) {
		out, err := svc.Dispatch(ctx, task)
		if err != nil {
			if statusFor(err) < http.StatusInternalServerError {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return out.Entry(""), nil
	}
}

// handleSubmitJob handles POST /api/pdf/jobs requests. The form carries an
// "operation" field plus the fields of that operation's endpoint.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		s.sendError(w, "job queue is disabled", http.StatusServiceUnavailable)
		return
	}
	if !s.parseForm(w, r) {
		return
	}

	params := formParams(r)
	op := params["operation"]
	delete(params, "operation")
	if !slices.Contains(config.Operations, op) {
		s.sendError(w, fmt.Sprintf("unknown operation %q; supported: %s", op, strings.Join(config.Operations, ", ")), http.StatusBadRequest)
		return
	}
	if op == config.OpSplitByRanges && params["ranges"] == "" {
		s.sendError(w, missingRangesMessage, http.StatusBadRequest)
		return
	}

	field, kind := "file", upload.KindPDF
	switch op {
	case config.OpMerge:
		field = "files"
	case config.OpImagesToPDF:
		field, kind = "files", upload.KindImage
	}

	batch, ok := s.saveFiles(w, r, field, kind)
	if !ok {
		return
	}
	defer batch.Cleanup()

	task := queue.Task{Operation: op, Params: params}
	for _, f := range batch.Files {
		data, err := f.Bytes()
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		task.Inputs = append(task.Inputs, queue.Input{Name: f.Name, Data: data})
	}

	job, err := s.queue.Submit(r.Context(), task)
	if err != nil {
		s.fail(w, r, "submit job", err)
		return
	}

	w.Header().Set("Location", "/api/pdf/jobs/"+job.ID)
	s.sendJSON(w, job, http.StatusAccepted)
}

// handleGetJob handles GET /api/pdf/jobs/{id} requests.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		s.sendError(w, "job queue is disabled", http.StatusServiceUnavailable)
		return
	}

	job, err := s.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "get job", err)
		return
	}
	s.sendJSON(w, job, http.StatusOK)
}

// handleJobResult handles GET /api/pdf/jobs/{id}/result requests. The
// result has the same shape as the synchronous endpoint's reply.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		s.sendError(w, "job queue is disabled", http.StatusServiceUnavailable)
		return
	}

	job, entry, err := s.queue.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotReady) && job != nil {
			msg := fmt.Sprintf("job is %s", job.Status)
			if job.Error != "" {
				msg += ": " + job.Error
			}
			s.sendError(w, msg, http.StatusConflict)
			return
		}
		s.fail(w, r, "get job result", err)
		return
	}

	out := service.FromEntry(entry)
	if job.Operation == config.OpToText {
		s.sendText(w, r, out)
		return
	}
	s.sendOutput(w, out, job.Operation)
}
