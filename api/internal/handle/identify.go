package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"plant-id/api/internal/identify"
	"plant-id/api/internal/plant"
	"plant-id/api/internal/util"
)

const (
	kindInvalidRequest = "invalid_request"
	kindImageTooLarge  = "image_too_large"
	kindInternal       = "internal_error"
)

// IdentifyRequest — JSON-вариант запроса (для multipart — поля image и llm_name).
type IdentifyRequest struct {
	ImageB64 string `json:"image_b64"`
	MimeType string `json:"mime_type,omitempty"`
	LLMName  string `json:"llm_name,omitempty"`
}

type IdentifyResponse struct {
	OK        bool          `json:"ok"`
	Record    *plant.Record `json:"record"`
	Engine    string        `json:"engine"`
	Model     string        `json:"model"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Cached    bool          `json:"cached"`
	RequestID string        `json:"request_id"`
}

// Identify — POST /v1/identify.
func (h *Handle) Identify(c *gin.Context) {
	limit := h.svc.MaxImageBytes()
	// base64 раздувает в 4/3 раза, плюс запас на заголовки multipart/JSON
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit*4/3+64<<10)

	req, err := h.readRequest(c, limit)
	if err != nil {
		h.writeInputError(c, err, limit)
		return
	}
	req.RequestID = RequestIDFrom(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline(c))
	defer cancel()

	res, err := h.svc.Identify(ctx, req)
	if err != nil {
		if pe, ok := plant.AsError(err); ok {
			writeError(c, http.StatusBadGateway, string(pe.Kind), pe.UserMessage())
			return
		}
		h.writeInputError(c, err, limit)
		return
	}

	rec := res.Record
	c.JSON(http.StatusOK, IdentifyResponse{
		OK:        true,
		Record:    &rec,
		Engine:    res.Engine,
		Model:     res.Model,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Cached:    res.Cached,
		RequestID: res.RequestID,
	})
}

func (h *Handle) readRequest(c *gin.Context, limit int64) (identify.Request, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return readMultipart(c, limit)
	}
	var body IdentifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return identify.Request{}, badRequest("bad json", err)
	}
	if strings.TrimSpace(body.ImageB64) == "" {
		return identify.Request{}, identify.ErrEmptyImage
	}
	img, hint, err := util.DecodeBase64MaybeDataURL(body.ImageB64)
	if err != nil {
		return identify.Request{}, badRequest("bad image_b64", err)
	}
	return identify.Request{Image: img, MIME: body.MimeType, MIMEHint: hint, Engine: body.LLMName}, nil
}

func readMultipart(c *gin.Context, limit int64) (identify.Request, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return identify.Request{}, badRequest("form field image", err)
	}
	// размер известен из заголовка части — отказываем до чтения
	if fh.Size > limit {
		return identify.Request{}, fmt.Errorf("%w: %d bytes, limit %d", identify.ErrImageTooLarge, fh.Size, limit)
	}
	f, err := fh.Open()
	if err != nil {
		return identify.Request{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	img, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return identify.Request{}, badRequest("read upload", err)
	}
	return identify.Request{
		Image:  img,
		MIME:   fh.Header.Get("Content-Type"),
		Engine: c.PostForm("llm_name"),
	}, nil
}

func (h *Handle) writeInputError(c *gin.Context, err error, limit int64) {
	var (
		mbe *http.MaxBytesError
		re  *requestError
	)
	switch {
	case errors.Is(err, identify.ErrImageTooLarge), errors.As(err, &mbe),
		strings.Contains(err.Error(), "request body too large"):
		writeError(c, http.StatusRequestEntityTooLarge, kindImageTooLarge, identify.TooLargeMessage(limit))
	case errors.Is(err, identify.ErrEmptyImage),
		errors.Is(err, identify.ErrUnsupportedImage),
		errors.Is(err, identify.ErrUnknownEngine),
		errors.As(err, &re):
		writeError(c, http.StatusBadRequest, kindInvalidRequest, err.Error())
	default:
		h.log.Error("identify request failed", zap.String("request_id", RequestIDFrom(c)), zap.Error(err))
		writeError(c, http.StatusInternalServerError, kindInternal, "Error identifying plant. Please try again.")
	}
}

// requestError — кривой запрос клиента (400).
type requestError struct {
	what string
	err  error
}

func (e *requestError) Error() string { return e.what + ": " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(what string, err error) error { return &requestError{what: what, err: err} }

// deadline: X-Request-Timeout (сек) или ?timeoutSec=, иначе из конфига.
func (h *Handle) deadline(c *gin.Context) time.Duration {
	for _, ts := range []string{c.GetHeader("X-Request-Timeout"), c.Query("timeoutSec")} {
		if v, _ := strconv.Atoi(strings.TrimSpace(ts)); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.timeout
}
