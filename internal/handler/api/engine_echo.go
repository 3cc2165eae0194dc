package api

import (
	"context"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"
	domrepo "LatentTrader/internal/domain/repository"
	domsvc "LatentTrader/internal/domain/service"
	apimetrics "LatentTrader/internal/service/metrics"
	"LatentTrader/internal/usecase"
	xhttp "LatentTrader/pkg/http"
	xlogger "LatentTrader/pkg/logger"
	"LatentTrader/pkg/queue"

	"github.com/labstack/echo/v4"
)

// Backtester evaluates a model out of sample.
type Backtester interface {
	Run(ctx context.Context, p models.TrainParams, withSamples bool) (*models.BacktestReport, error)
}

// PositionReader exposes the agent balances and the last match price.
type PositionReader interface {
	Position() (models.Position, float64)
}

// Engine is what the handler needs from the live model.
type Engine interface {
	domsvc.ModelProvider
	domsvc.Predictor
}

// EngineHandler serves the prediction engine over HTTP.
type EngineHandler struct {
	logger   *xlogger.Logger
	engine   Engine
	backtest Backtester
	jobs     queue.QueueService
	agent    PositionReader
	lookback time.Duration
	now      func() time.Time
}

func NewEngineHandler(logger *xlogger.Logger, engine Engine, backtest Backtester, jobs queue.QueueService, agent PositionReader, lookback time.Duration) *EngineHandler {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &EngineHandler{
		logger:   logger,
		engine:   engine,
		backtest: backtest,
		jobs:     jobs,
		agent:    agent,
		lookback: lookback,
		now:      time.Now,
	}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/predict", h.Predict)
	g.GET("/model", h.Model)
	g.POST("/train", h.Train)
	g.POST("/backtest", h.Backtest)
	g.GET("/position", h.Position)
}

func (h *EngineHandler) Predict(c echo.Context) error {
	start := time.Now()

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m, ok := h.engine.Current()
	if !ok {
		return h.fail(c, "predict", start, errs.ErrModelNotReady)
	}
	est, err := h.engine.Estimate(req.Window)
	if err != nil {
		h.logger.Warn("predict failed", xlogger.Int("window", len(req.Window)), xlogger.Error(err))
		return h.fail(c, "predict", start, err)
	}
	apimetrics.Observe("predict", start, nil)
	return xhttp.SuccessResponse(c, &models.PredictResponse{Estimate: est, PatternCount: m.K()})
}

func (h *EngineHandler) Model(c echo.Context) error {
	m, ok := h.engine.Current()
	if !ok {
		return xhttp.AppErrorResponse(c, toAppError(errs.ErrModelNotReady))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, m)
}

func (h *EngineHandler) Train(c echo.Context) error {
	start := time.Now()

	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := h.params(req.Product, req.From, req.To, req.Granularity)
	if !p.From.Before(p.To) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be before to"))
	}

	id, err := h.jobs.PublishMessage(c.Request().Context(), usecase.TrainJobType, p)
	if err != nil {
		h.logger.Error("enqueue training failed", xlogger.String("product", p.Product), xlogger.Error(err))
		return h.fail(c, "train", start, err)
	}
	apimetrics.Observe("train", start, nil)
	return xhttp.AcceptedResponse(c, &models.TrainAccepted{JobID: id, Params: p})
}

func (h *EngineHandler) Backtest(c echo.Context) error {
	start := time.Now()

	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := h.params(req.Product, req.From, req.To, req.Granularity)

	report, err := h.backtest.Run(c.Request().Context(), p, req.Samples)
	if err != nil {
		h.logger.Error("backtest usecase error", xlogger.String("product", p.Product), xlogger.Error(err))
		return h.fail(c, "backtest", start, err)
	}
	apimetrics.Observe("backtest", start, nil)
	return xhttp.SuccessResponse(c, report)
}

func (h *EngineHandler) Position(c echo.Context) error {
	pos, last := h.agent.Position()
	return xhttp.SuccessResponse(c, &models.PositionResponse{
		Position:  pos,
		LastPrice: last,
		Valuation: pos.Valuation(last),
	})
}

// fail counts err against endpoint and writes the mapped error response.
func (h *EngineHandler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	apimetrics.Observe(endpoint, start, err)
	return xhttp.AppErrorResponse(c, toAppError(err))
}

func (h *EngineHandler) params(product, from, to string, granularity int) models.TrainParams {
	g := domrepo.NormalizeGranularity(granularity)
	start, end := xhttp.ParseRange(from, to, h.lookback, g.Duration(), h.now())
	return models.TrainParams{Product: product, From: start, To: end, Granularity: int(g)}
}

var _ xhttp.Handler = (*EngineHandler)(nil)
