package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/api/dto"
	"github.com/athletix/exchange/internal/auth"
	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/leaderboard"
	"github.com/athletix/exchange/internal/ledger"
	"github.com/athletix/exchange/internal/market"
	"github.com/athletix/exchange/internal/middleware"
	"github.com/athletix/exchange/internal/port"
)

const leaderboardSize = 10

// HTTPServer exposes the exchange over REST. Auth routes are public,
// trading and portfolio routes require a bearer token.
type HTTPServer struct {
	market *market.Market
	ledger *ledger.Ledger
	auth   *auth.Manager
	board  *leaderboard.Board
	repo   port.Repository

	startingCash decimal.Decimal
	rateLimit    time.Duration
}

// NewHTTPServer wires the REST surface. rateLimit bounds how often one user
// may hit the trading routes; zero disables the limiter.
func NewHTTPServer(m *market.Market, l *ledger.Ledger, a *auth.Manager, b *leaderboard.Board, repo port.Repository, startingCash decimal.Decimal, rateLimit time.Duration) *HTTPServer {
	return &HTTPServer{market: m, ledger: l, auth: a, board: b, repo: repo, startingCash: startingCash, rateLimit: rateLimit}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.PrometheusMiddleware())

	r.POST("/auth/register", s.registerHandler)
	r.POST("/auth/login", s.loginHandler)

	r.GET("/market/players", s.playersHandler)
	r.GET("/market/players/search", s.searchPlayersHandler)
	r.GET("/market/player_info/:player_id", s.playerInfoHandler)
	r.GET("/market/orderbooks/:player_id", s.orderbookHandler)
	r.GET("/market/history/:player_id", s.historyHandler)
	r.GET("/leaderboard", s.leaderboardHandler)

	authed := r.Group("/api", middleware.RequireAuth(s.auth))
	if s.rateLimit > 0 {
		authed.Use(middleware.NewRateLimiter(s.rateLimit).Middleware())
	}
	authed.GET("/portfolio", s.portfolioHandler)
	authed.POST("/orders", s.placeOrderHandler)
	authed.POST("/orders/cancel", s.cancelOrderHandler)

	return r
}

func (s *HTTPServer) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *HTTPServer) registerHandler(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}
	user, err := s.ledger.CreateUser(c.Request.Context(), req.Username, hash, s.startingCash)
	if err != nil {
		if errors.Is(err, ledger.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.RegisterResponse{UserID: user.ID, Message: "registered"})
}

func (s *HTTPServer) loginHandler(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.ledger.UserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil || !s.auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, dto.LoginResponse{Token: token})
}

func (s *HTTPServer) placeOrderHandler(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy or sell"})
		return
	}
	if req.Quantity <= 0 || !req.Price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price and quantity must be positive"})
		return
	}
	if !req.Price.Equal(req.Price.Truncate(2)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price precision is limited to cents"})
		return
	}

	userID := middleware.AuthedUser(c)
	ctx := c.Request.Context()

	// The market maker's listing asks are backed by the float, not by a
	// holdings row, so it skips the pre-checks.
	if userID != s.market.MakerID() {
		if side == domain.Buy {
			ok, err := s.market.CheckBuyingPower(ctx, userID, req.Price.Mul(decimal.NewFromInt(req.Quantity)))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if !ok {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient buying power"})
				return
			}
		} else {
			ok, err := s.market.CheckAvailableShares(ctx, userID, req.PlayerID, req.Quantity)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if !ok {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient available shares"})
				return
			}
		}
	}

	restingID, trades, err := s.market.PlaceOrder(ctx, req.PlayerID, userID, side, req.Price, req.Quantity)
	if err != nil {
		log.Error().Err(err).Str("player_id", req.PlayerID).Msg("place order failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	middleware.OrdersTotal.WithLabelValues(string(side), req.PlayerID).Inc()
	middleware.TradesTotal.WithLabelValues(req.PlayerID).Add(float64(len(trades)))

	resp := dto.PlaceOrderResponse{OrderID: restingID, Trades: make([]dto.Trade, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, dto.Trade{
			TradeID:   t.ID,
			PlayerID:  t.PlayerID,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Timestamp: t.ExecutedAt,
			TakerSide: string(t.TakerSide),
		})
	}
	if restingID == 0 {
		resp.Message = "order fully filled"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) cancelOrderHandler(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.AuthedUser(c)
	cancelled, err := s.market.CancelOrder(c.Request.Context(), req.PlayerID, userID, req.OrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cancelled {
		middleware.CancelsTotal.WithLabelValues(req.PlayerID).Inc()
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{OrderID: req.OrderID, Cancelled: cancelled})
}

func (s *HTTPServer) orderbookHandler(c *gin.Context) {
	playerID := c.Param("player_id")
	depth, err := s.market.Depth(c.Request.Context(), playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.OrderBookResponse{
		PlayerID: playerID,
		Bids:     make([]dto.PriceLevel, 0, len(depth.Bids)),
		Asks:     make([]dto.PriceLevel, 0, len(depth.Asks)),
	}
	for _, lvl := range depth.Bids {
		resp.Bids = append(resp.Bids, dto.PriceLevel{Price: lvl.Price, Quantity: lvl.Quantity})
	}
	for _, lvl := range depth.Asks {
		resp.Asks = append(resp.Asks, dto.PriceLevel{Price: lvl.Price, Quantity: lvl.Quantity})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) historyHandler(c *gin.Context) {
	playerID := c.Param("player_id")
	summary, err := s.market.Tracker(playerID).Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *HTTPServer) playersHandler(c *gin.Context) {
	players := s.market.Players()
	sort.Strings(players)
	c.JSON(http.StatusOK, dto.PlayersResponse{Players: players})
}

func (s *HTTPServer) searchPlayersHandler(c *gin.Context) {
	q := strings.ToLower(c.Query("q"))
	matched := make([]string, 0)
	for _, p := range s.market.Players() {
		if q == "" || strings.Contains(strings.ToLower(p), q) {
			matched = append(matched, p)
		}
	}
	sort.Strings(matched)
	c.JSON(http.StatusOK, dto.PlayersResponse{Players: matched})
}

func (s *HTTPServer) playerInfoHandler(c *gin.Context) {
	playerID := c.Param("player_id")
	price, ok, err := s.market.IPOPrice(c.Request.Context(), playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown player"})
		return
	}
	c.JSON(http.StatusOK, dto.PlayerInfoResponse{PlayerID: playerID, IPOPrice: price})
}

func (s *HTTPServer) portfolioHandler(c *gin.Context) {
	userID := middleware.AuthedUser(c)
	ctx := c.Request.Context()

	user, err := s.ledger.UserByID(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}
	holdings, err := s.ledger.Holdings(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.PortfolioResponse{
		CashBalance: user.CashBalance,
		TotalValue:  user.CashBalance,
		Holdings:    make([]dto.HoldingSummary, 0, len(holdings)),
	}
	for _, h := range holdings {
		price, traded, err := s.market.LastPrice(ctx, h.PlayerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !traded {
			price = h.AvgCost
		}
		value := price.Mul(decimal.NewFromInt(h.Quantity))
		resp.TotalValue = resp.TotalValue.Add(value)
		resp.Holdings = append(resp.Holdings, dto.HoldingSummary{
			PlayerID:    h.PlayerID,
			Quantity:    h.Quantity,
			AvgCost:     h.AvgCost,
			MarketValue: value,
		})
	}

	points, err := s.repo.PortfolioHistory(ctx, userID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp.History = make([]dto.PortfolioPoint, 0, len(points))
	for _, p := range points {
		resp.History = append(resp.History, dto.PortfolioPoint{Time: p.RecordedAt, Value: p.TotalValue})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) leaderboardHandler(c *gin.Context) {
	ctx, cancel := contextWithTimeout(c)
	defer cancel()

	entries, err := s.board.Top(ctx, leaderboardSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func contextWithTimeout(c *gin.Context) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 5*time.Second)
}
