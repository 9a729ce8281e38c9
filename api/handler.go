package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/kbukum/whisper-gateway/admission"
	"github.com/kbukum/whisper-gateway/device"
	apperrors "github.com/kbukum/whisper-gateway/errors"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/observability"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/server"
	"github.com/kbukum/whisper-gateway/server/middleware"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/workfile"
)

// Gate is the model gate as the handler sees it.
type Gate interface {
	resilience.Gate
	Stats() resilience.Stats
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Gate        Gate
	Stager      *workfile.Stager
	Policy      admission.Policy
	ChunkLength int
	// MaxBodySize is the HTTP body cap. A request declaring a larger body
	// is answered from its part headers alone. 0 disables that path.
	MaxBodySize int64
	Metrics     *observability.Metrics
	Log         *logger.Logger
}

// Handler serves the transcription and health routes. It answers 503 until
// SetReady hands it a loaded model.
type Handler struct {
	gate        Gate
	stager      *workfile.Stager
	policy      admission.Policy
	chunkLength int
	maxBodySize int64
	metrics     *observability.Metrics
	log         *logger.Logger

	mu     sync.RWMutex
	handle *transcription.Handle
	probe  device.Probe
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		gate:        d.Gate,
		stager:      d.Stager,
		policy:      d.Policy,
		chunkLength: d.ChunkLength,
		maxBodySize: d.MaxBodySize,
		metrics:     d.Metrics,
		log:         d.Log.WithComponent("api"),
	}
}

// SetReady publishes the loaded model and the accelerator probe behind it.
func (h *Handler) SetReady(handle *transcription.Handle, probe device.Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handle = handle
	h.probe = probe
}

// Ready reports whether a model is available.
func (h *Handler) Ready() bool {
	handle, _ := h.current()
	return handle != nil
}

func (h *Handler) current() (*transcription.Handle, device.Probe) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handle, h.probe
}

// TranscriptionResponse is the JSON transcription body.
type TranscriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcriptions handles POST /v1/audio/transcriptions.
func (h *Handler) Transcriptions(c *gin.Context) {
	var fields admission.Fields
	h.serve(c, func() (admission.Fields, error) {
		if err := c.ShouldBindWith(&fields, binding.FormMultipart); err != nil {
			return fields, apperrors.InvalidInput("", err.Error())
		}
		return fields, nil
	})
}

// Transcribe handles POST /transcribe: JSON output, default model label.
func (h *Handler) Transcribe(c *gin.Context) {
	h.serve(c, func() (admission.Fields, error) {
		return admission.Fields{
			ModelName:      "whisper-1",
			Language:       c.PostForm("language"),
			ResponseFormat: admission.FormatJSON,
		}, nil
	})
}

// serve runs one request: admit, stage, transcribe under the gate, respond.
// The working file is removed before the response is written.
func (h *Handler) serve(c *gin.Context, readFields func() (admission.Fields, error)) {
	ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanRequest)
	defer span.End()
	requestID := c.GetHeader(middleware.RequestIDHeader)
	observability.SetSpanAttribute(ctx, observability.AttrRequestID, requestID)

	route := c.FullPath()
	outcome := observability.OutcomeFailed
	h.metrics.RecordRequestStart(ctx)
	defer func() { h.metrics.RecordRequestEnd(ctx, route, outcome) }()

	handle, _ := h.current()
	if handle == nil {
		outcome = observability.OutcomeBusy
		server.RespondWithError(c, apperrors.ServiceUnavailable("transcription model"))
		return
	}

	req, err := h.admit(c, readFields)
	if err != nil {
		outcome = observability.OutcomeRejected
		server.RespondWithError(c, err)
		return
	}

	observability.SetSpanAttribute(ctx, observability.AttrExtension, req.Extension)
	observability.SetSpanAttribute(ctx, observability.AttrSizeBytes, req.Upload.Size)
	h.log.Info("Processing transcription", map[string]interface{}{
		"filename":            req.Upload.Filename,
		"size_kb":             fmt.Sprintf("%.1f", float64(req.Upload.Size)/1024),
		logger.FieldRequestID: requestID,
	})

	res, err := h.run(ctx, handle, req)
	if err != nil {
		appErr := apperrors.Wrap(err)
		switch {
		case appErr.Code == apperrors.ErrCodeServerBusy && ctx.Err() != nil:
			outcome = observability.OutcomeCanceled
		case appErr.Code == apperrors.ErrCodeServerBusy:
			outcome = observability.OutcomeBusy
		default:
			observability.SetSpanError(ctx, err)
			h.log.Error("Transcription failed", map[string]interface{}{
				"filename":            req.Upload.Filename,
				logger.FieldError:     err.Error(),
				logger.FieldRequestID: requestID,
			})
		}
		server.RespondWithError(c, appErr)
		return
	}

	outcome = observability.OutcomeOK
	if req.ResponseFormat == admission.FormatText {
		c.String(http.StatusOK, res.Text)
		return
	}
	c.JSON(http.StatusOK, res)
}

// admit reads the multipart upload and form fields and applies the
// admission policy. Nothing is written to disk here beyond what the
// multipart reader itself spools.
func (h *Handler) admit(c *gin.Context, readFields func() (admission.Fields, error)) (admission.Request, error) {
	if h.maxBodySize > 0 && c.Request.ContentLength > h.maxBodySize {
		return admission.Request{}, h.rejectOversized(c.Request)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return admission.Request{}, h.tooLarge(c.Request, maxErr.Limit+1)
		case errors.Is(err, http.ErrMissingFile):
			return admission.Request{}, apperrors.MissingField("file")
		default:
			return admission.Request{}, apperrors.InvalidInput("file", err.Error())
		}
	}

	fields, err := readFields()
	if err != nil {
		return admission.Request{}, err
	}

	up := admission.Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
	return admission.Admit(up, fields, h.policy)
}

// rejectOversized answers a request whose declared body exceeds the cap.
// It reads parts only up to the file part's header, so the extension is
// still checked before the size.
func (h *Handler) rejectOversized(r *http.Request) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return apperrors.InvalidInput("file", err.Error())
	}
	for {
		part, err := mr.NextPart()
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.MissingField("file")
		case errors.As(err, &maxErr):
			return h.tooLarge(r, maxErr.Limit+1)
		case err != nil:
			return apperrors.InvalidInput("file", err.Error())
		}
		if part.FormName() == "file" {
			// Closing the part would drain it; the body is abandoned instead.
			if _, err := admission.CheckExtension(part.FileName(), h.policy); err != nil {
				return err
			}
			return h.tooLarge(r, r.ContentLength)
		}
		_, err = io.Copy(io.Discard, part)
		part.Close()
		if errors.As(err, &maxErr) {
			return h.tooLarge(r, maxErr.Limit+1)
		}
	}
}

// tooLarge reports the declared body size, or least when the size was not
// declared, against the upload limit.
func (h *Handler) tooLarge(r *http.Request, least int64) error {
	size := max(r.ContentLength, least)
	return apperrors.PayloadTooLarge(size, h.policy.MaxFileSize)
}

// run stages the upload and calls the model while holding the gate. The
// gate wait follows the client; the model call does not, so a started
// transcription always completes and releases the gate itself.
func (h *Handler) run(ctx context.Context, handle *transcription.Handle, req admission.Request) (TranscriptionResponse, error) {
	src, err := req.Upload.Open()
	if err != nil {
		return TranscriptionResponse{}, apperrors.Internal(fmt.Errorf("open upload: %w", err))
	}
	defer src.Close()

	opts := transcription.RequestOptions(req.Language, h.chunkLength)
	modelCtx := context.WithoutCancel(ctx)

	var res TranscriptionResponse
	err = h.stager.With(src, req.Extension, func(path string) error {
		entered := false
		var err error
		res, err = resilience.ExecuteWithResult(ctx, h.gate, func() (TranscriptionResponse, error) {
			entered = true
			start := time.Now()
			text, language, err := handle.Transcribe(modelCtx, path, opts)
			status := "ok"
			if err != nil {
				status = "error"
			}
			h.metrics.RecordTranscription(modelCtx, handle.Engine(), status, time.Since(start))
			return TranscriptionResponse{Text: text, Language: language}, err
		})
		switch {
		case err == nil:
			return nil
		case !entered:
			return apperrors.ServerBusy(err.Error()).WithCause(err)
		default:
			return apperrors.TranscriptionFailed(err)
		}
	})
	if err != nil && !apperrors.IsAppError(err) {
		return res, apperrors.Internal(err)
	}
	return res, err
}
