package identify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"plant-id/api/internal/config"
	"plant-id/api/internal/engine"
	"plant-id/api/internal/logging"
	"plant-id/api/internal/plant"
	"plant-id/api/internal/store"
	"plant-id/api/internal/util"
)

// Ошибки входа: отсекаются до обращения к модели.
var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrImageTooLarge    = errors.New("image is too large")
	ErrUnsupportedImage = errors.New("file is not an image")
	ErrUnknownEngine    = errors.New("unknown engine")
)

// Selector выбирает движок по llm_name (engine.Engines).
type Selector interface {
	GetEngine(llmName string) (engine.Engine, error)
}

// Cache — хранилище успешных идентификаций (store.IdentificationRepo).
type Cache interface {
	FindByHash(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (*store.IdentifiedRow, error)
	Upsert(ctx context.Context, imageHash, engine, model string, rec plant.Record) error
}

type Options struct {
	MaxImageBytes int64 // 0 — config.DefaultMaxImageBytes
	Cache         Cache // nil — без кэша
	CacheMaxAge   time.Duration
}

type Request struct {
	Image     []byte
	MIME      string // явный MIME от клиента
	MIMEHint  string // MIME из data URL
	Engine    string // llm_name; пусто — движок по умолчанию
	RequestID string
}

// Result — успешная идентификация. При ошибке Identify возвращает нулевой Result.
type Result struct {
	Record    plant.Record
	Engine    string
	Model     string
	Elapsed   time.Duration // длительность вызова модели; 0 для ответа из кэша
	Cached    bool
	RequestID string
}

type Service struct {
	engines     Selector
	cache       Cache
	cacheMaxAge time.Duration
	maxBytes    int64
	log         *zap.Logger
}

func New(engines Selector, opts Options, log *zap.Logger) *Service {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = config.DefaultMaxImageBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		engines:     engines,
		cache:       opts.Cache,
		cacheMaxAge: opts.CacheMaxAge,
		maxBytes:    opts.MaxImageBytes,
		log:         log,
	}
}

func (s *Service) MaxImageBytes() int64 { return s.maxBytes }

// CheckSize — проверка размера, которую фронтенды делают до скачивания/декодирования.
func (s *Service) CheckSize(n int64) error {
	if n > s.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, n, s.maxBytes)
	}
	return nil
}

// Identify — одна попытка идентификации: проверка входа, (кэш), вызов модели, нормализация.
// Ошибки модели и разбора приходят как *plant.Error; ошибки входа — как Err* этого пакета.
func (s *Service) Identify(ctx context.Context, req Request) (Result, error) {
	if len(req.Image) == 0 {
		return Result{}, ErrEmptyImage
	}
	if err := s.CheckSize(int64(len(req.Image))); err != nil {
		return Result{}, err
	}
	mime := util.PickMIME(req.MIME, req.MIMEHint, req.Image)
	if !util.IsImageMIME(mime) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	eng, err := s.engines.GetEngine(req.Engine)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnknownEngine, err)
	}

	res := Result{Engine: eng.Name(), Model: eng.GetModel(), RequestID: req.RequestID}
	log := s.log.With(
		zap.String("request_id", req.RequestID),
		zap.String("engine", res.Engine),
		zap.String("model", res.Model),
	)
	hash := util.SHA256Hex(req.Image)

	if s.cache != nil {
		row, err := s.cache.FindByHash(ctx, hash, res.Engine, res.Model, s.cacheMaxAge)
		switch {
		case err == nil:
			log.Info("identification served from cache", zap.String("image_hash", hash))
			res.Record = row.Record
			res.Cached = true
			return res, nil
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Warn("cache lookup failed", zap.Error(err))
		}
	}

	start := time.Now()
	raw, err := eng.Identify(ctx, req.Image, mime)
	res.Elapsed = time.Since(start)
	if err != nil {
		log.Error("model invocation failed", zap.Error(err), zap.Duration("elapsed", res.Elapsed))
		return Result{}, plant.InvocationFailed(err)
	}
	log.Debug("model response",
		zap.Duration("elapsed", res.Elapsed),
		zap.String("raw", logging.Truncate(fmt.Sprint(raw), 4000)))

	rec, err := plant.Normalize(raw)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if pe, ok := plant.AsError(err); ok {
			fields = append(fields,
				zap.String("kind", string(pe.Kind)),
				zap.String("cleaned", logging.Truncate(pe.Raw, 4000)))
		}
		log.Warn("failed to normalize model response", fields...)
		return Result{}, err
	}
	res.Record = rec

	if s.cache != nil {
		if err := s.cache.Upsert(ctx, hash, res.Engine, res.Model, rec); err != nil {
			log.Warn("cache upsert failed", zap.Error(err))
		}
	}
	log.Info("plant identified",
		zap.String("scientific_name", string(rec.ScientificName)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}
