// server.go - HTTP API for the settlement daemon.
package main

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"darkpool/client"
	"darkpool/internal/ledger"
	"darkpool/internal/settlement"
	"darkpool/internal/store"
)

// Server exposes the settlement engine over REST. Every state-changing
// handler persists a snapshot after the engine commits.
type Server struct {
	engine  *settlement.Engine
	store   store.Store
	logger  *logrus.Logger
	audit   *logrus.Logger
	metrics *MetricsCollector
	health  *HealthChecker
	limiter *ClientRateLimiter
}

// NewServer wires the API around an engine.
func NewServer(engine *settlement.Engine, st store.Store, logger, audit *logrus.Logger, metrics *MetricsCollector, health *HealthChecker, limiter *ClientRateLimiter) *Server {
	return &Server{
		engine:  engine,
		store:   st,
		logger:  logger,
		audit:   audit,
		metrics: metrics,
		health:  health,
		limiter: limiter,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(RateLimitMiddleware(s.limiter))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	v1 := r.Group("/v1")
	v1.POST("/deposit", s.handleDeposit)
	v1.POST("/withdraw", s.handleWithdraw)
	v1.POST("/escrow/lock", s.handleLock)
	v1.POST("/escrow/unlock", s.handleUnlock)
	v1.POST("/settle", s.handleSettle)
	v1.GET("/balances/:participant/:asset", s.handleBalance)
	v1.GET("/nullifiers", s.handleNullifiers)
	v1.GET("/nullifiers/:nullifier", s.handleNullifier)
	v1.GET("/settlements", s.handleSettlements)
	v1.GET("/settlements/:matchID", s.handleSettlement)

	admin := v1.Group("/admin")
	admin.POST("/enforcement", s.handleEnforcement)
	admin.POST("/verifying-key", s.handleVerifyingKey)

	return r
}

// requestLogger tags each request with an ID and logs method, path,
// status and latency.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		entry := s.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Summary())
}

func (s *Server) handleDeposit(c *gin.Context) {
	req, amount, ok := s.bindBalanceOp(c)
	if !ok {
		return
	}

	start := time.Now()
	balance, err := s.engine.Deposit(c.Request.Context(), req.Participant, req.Asset, amount, req.Credential)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.finishOp(c, MetricDepositCount, start, "deposit", logrus.Fields{
		"participant": req.Participant.Hex(),
		"asset":       req.Asset.Hex(),
		"amount":      amount.String(),
	})
	c.JSON(http.StatusOK, client.AmountResponse{
		Participant: req.Participant,
		Asset:       req.Asset,
		Balance:     balance,
	})
}

func (s *Server) handleWithdraw(c *gin.Context) {
	req, amount, ok := s.bindBalanceOp(c)
	if !ok {
		return
	}

	start := time.Now()
	balance, err := s.engine.Withdraw(c.Request.Context(), req.Participant, req.Asset, amount, req.Credential)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.finishOp(c, MetricWithdrawCount, start, "withdraw", logrus.Fields{
		"participant": req.Participant.Hex(),
		"asset":       req.Asset.Hex(),
		"amount":      amount.String(),
	})
	c.JSON(http.StatusOK, client.AmountResponse{
		Participant: req.Participant,
		Asset:       req.Asset,
		Balance:     balance,
	})
}

func (s *Server) handleLock(c *gin.Context) {
	req, amount, ok := s.bindBalanceOp(c)
	if !ok {
		return
	}

	start := time.Now()
	err := s.engine.LockEscrow(c.Request.Context(), req.Participant, req.Asset, amount, req.Credential)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.finishOp(c, MetricLockCount, start, "lock_escrow", logrus.Fields{
		"participant": req.Participant.Hex(),
		"asset":       req.Asset.Hex(),
		"amount":      amount.String(),
	})
	c.JSON(http.StatusOK, s.balanceView(req.Participant, req.Asset))
}

func (s *Server) handleUnlock(c *gin.Context) {
	req, amount, ok := s.bindBalanceOp(c)
	if !ok {
		return
	}

	start := time.Now()
	err := s.engine.UnlockEscrow(c.Request.Context(), req.Participant, req.Asset, amount, req.Credential)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.finishOp(c, MetricUnlockCount, start, "unlock_escrow", logrus.Fields{
		"participant": req.Participant.Hex(),
		"asset":       req.Asset.Hex(),
		"amount":      amount.String(),
	})
	c.JSON(http.StatusOK, s.balanceView(req.Participant, req.Asset))
}

func (s *Server) handleSettle(c *gin.Context) {
	var req client.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	quantity, err := client.ParseAmount(req.Quantity)
	if err != nil {
		s.respondBadRequest(c, err)
		return
	}
	price, err := client.ParseAmount(req.Price)
	if err != nil {
		s.respondBadRequest(c, err)
		return
	}

	start := time.Now()
	rec, err := s.engine.SettleTrade(c.Request.Context(), settlement.SettleParams{
		MatchID:       req.MatchID,
		Buyer:         req.Buyer,
		Seller:        req.Seller,
		Asset:         req.Asset,
		PaymentAsset:  req.PaymentAsset,
		Quantity:      quantity,
		Price:         price,
		Proof:         req.Proof,
		PublicSignals: req.PublicSignals,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.finishOp(c, MetricSettlementCount, start, "settle_trade", logrus.Fields{
		"match_id":  rec.MatchID.Hex(),
		"buyer":     rec.Buyer.Hex(),
		"seller":    rec.Seller.Hex(),
		"asset":     rec.Asset.Hex(),
		"quantity":  rec.Quantity.String(),
		"price":     rec.Price.String(),
		"nullifier": rec.Nullifier.Hex(),
	})
	s.metrics.SetGauge(MetricNullifierCount, float64(len(s.engine.Ledger().Nullifiers())))
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleBalance(c *gin.Context) {
	participant, ok := s.addressParam(c, "participant")
	if !ok {
		return
	}
	asset, ok := s.addressParam(c, "asset")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.balanceView(participant, asset))
}

func (s *Server) handleNullifiers(c *gin.Context) {
	c.JSON(http.StatusOK, client.NullifiersResponse{
		Nullifiers: s.engine.Ledger().Nullifiers(),
	})
}

func (s *Server) handleNullifier(c *gin.Context) {
	nullifier, ok := s.hashParam(c, "nullifier")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, client.NullifierResponse{
		Nullifier: nullifier,
		Used:      s.engine.Ledger().IsNullifierUsed(nullifier),
	})
}

func (s *Server) handleSettlements(c *gin.Context) {
	c.JSON(http.StatusOK, client.SettlementsResponse{
		Settlements: s.engine.Ledger().Settlements(),
	})
}

func (s *Server) handleSettlement(c *gin.Context) {
	matchID, ok := s.hashParam(c, "matchID")
	if !ok {
		return
	}
	rec, err := s.engine.Ledger().Settlement(matchID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleEnforcement(c *gin.Context) {
	var req client.EnforcementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	if err := s.engine.SetWhitelistEnforcement(req.Caller, req.Credential, req.Enabled); err != nil {
		s.respondError(c, err)
		return
	}
	s.auditEvent("set_whitelist_enforcement", logrus.Fields{
		"caller":  req.Caller.Hex(),
		"enabled": req.Enabled,
	})
	c.JSON(http.StatusOK, client.StatusResponse{Status: "ok"})
}

func (s *Server) handleVerifyingKey(c *gin.Context) {
	var req client.VerifyingKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	if err := s.engine.RotateVerificationKey(req.Caller, req.Credential, req.VerifyingKey); err != nil {
		s.respondError(c, err)
		return
	}
	s.auditEvent("rotate_verification_key", logrus.Fields{
		"caller":   req.Caller.Hex(),
		"key_size": len(req.VerifyingKey),
	})
	c.JSON(http.StatusOK, client.StatusResponse{Status: "ok"})
}

// bindBalanceOp decodes the shared request body for deposit, withdraw,
// lock and unlock.
func (s *Server) bindBalanceOp(c *gin.Context) (client.BalanceOpRequest, *big.Int, bool) {
	var req client.BalanceOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return req, nil, false
	}
	amount, err := client.ParseAmount(req.Amount)
	if err != nil {
		s.respondBadRequest(c, err)
		return req, nil, false
	}
	return req, amount, true
}

// finishOp persists the snapshot, bumps metrics and writes the audit
// line for one committed operation.
func (s *Server) finishOp(c *gin.Context, metric string, start time.Time, op string, fields logrus.Fields) {
	s.persist()
	s.metrics.RecordOperation(metric, time.Since(start))
	fields["request_id"] = c.Writer.Header().Get("X-Request-ID")
	s.auditEvent(op, fields)
}

// persist saves a snapshot after a state change. The in-memory ledger
// stays authoritative, so a failed save is logged rather than undoing
// the operation.
func (s *Server) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.engine.Ledger().Snapshot()); err != nil {
		s.logger.Errorf("failed to persist snapshot: %v", err)
	}
}

func (s *Server) auditEvent(op string, fields logrus.Fields) {
	if s.audit == nil {
		return
	}
	s.audit.WithFields(fields).Info(op)
}

func (s *Server) balanceView(participant, asset common.Address) client.BalanceResponse {
	l := s.engine.Ledger()
	key := ledger.AccountKey{Participant: participant, Asset: asset}
	return client.BalanceResponse{
		Participant: participant,
		Asset:       asset,
		Escrow:      l.EscrowBalance(key),
		Locked:      l.LockedBalance(key),
		Available:   l.AvailableBalance(key),
	}
}

func (s *Server) addressParam(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		s.respondBadRequest(c, errors.New(name+" is not a hex address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) hashParam(c *gin.Context, name string) (common.Hash, bool) {
	b, err := hexutil.Decode(c.Param(name))
	if err != nil || len(b) != common.HashLength {
		s.respondBadRequest(c, errors.New(name+" is not a 32-byte hex value"))
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func (s *Server) respondBadRequest(c *gin.Context, err error) {
	s.metrics.RecordError()
	c.JSON(http.StatusBadRequest, client.ErrorResponse{Error: err.Error()})
}

// respondError translates engine and ledger errors to HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	s.metrics.RecordError()
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithField("path", c.Request.URL.Path).Errorf("request failed: %v", err)
	}
	c.JSON(status, client.ErrorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, settlement.ErrOnlyAdmin):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNullifierUsed),
		errors.Is(err, ledger.ErrAlreadySettled):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientEscrow),
		errors.Is(err, ledger.ErrInsufficientLockedFunds),
		errors.Is(err, settlement.ErrInvalidProof),
		errors.Is(err, settlement.ErrWhitelistRootMismatch),
		errors.Is(err, settlement.ErrAssetNotEligible),
		errors.Is(err, settlement.ErrParticipantNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, settlement.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
