package handle

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"plant-id/api/internal/identify"
)

// Identifier — то, что нужно HTTP-слою от identify.Service.
type Identifier interface {
	Identify(ctx context.Context, req identify.Request) (identify.Result, error)
	MaxImageBytes() int64
}

type EngineLister interface {
	Names() []string
}

type Handle struct {
	svc     Identifier
	engs    EngineLister
	timeout time.Duration
	log     *zap.Logger

	// Ping проверяет зависимости для /healthz (БД кэша); nil — проверять нечего.
	Ping func(ctx context.Context) error
}

func New(svc Identifier, engs EngineLister, timeout time.Duration, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Handle{svc: svc, engs: engs, timeout: timeout, log: log}
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, code int, kind, msg string) {
	c.JSON(code, gin.H{
		"ok":         false,
		"error":      ErrorBody{Kind: kind, Message: msg},
		"request_id": RequestIDFrom(c),
	})
}
