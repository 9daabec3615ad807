package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mohameddodda/paper-trading-bot/internal/bot"
	"github.com/mohameddodda/paper-trading-bot/internal/circuit"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
	"github.com/mohameddodda/paper-trading-bot/internal/ledger"
)

const maxTradesLimit = 500

// handleStatus returns cash, equity, guard state and every symbol
func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.bot.Status())
}

// handleTrades returns recent trades, newest first. The journal is used when
// configured, falling back to the in-memory list.
func (s *Server) handleTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxTradesLimit {
		limit = maxTradesLimit
	}
	symbol := strings.ToUpper(c.Query("symbol"))

	if s.trades != nil {
		records, err := s.trades.ListRecentTrades(c.Request.Context(), symbol, limit)
		if err == nil {
			out := make([]events.TradeEvent, 0, len(records))
			for _, r := range records {
				out = append(out, r.ToTradeEvent())
			}
			successResponse(c, out)
			return
		}
		s.logger.Warn().Err(err).Msg("Trade journal unavailable, serving in-memory trades")
	}

	trades := s.bot.RecentTrades(0)
	out := make([]events.TradeEvent, 0, limit)
	for _, t := range trades {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	successResponse(c, out)
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.bot.Start(); err != nil {
		errorResponse(c, statusFor(err), err.Error())
		return
	}
	successResponse(c, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.bot.Stop(); err != nil {
		errorResponse(c, statusFor(err), err.Error())
		return
	}
	successResponse(c, gin.H{"running": false})
}

func (s *Server) handleReset(c *gin.Context) {
	s.bot.Reset()
	successResponse(c, s.bot.Status())
}

func (s *Server) handleForceBuy(c *gin.Context) {
	trade, err := s.bot.ForceBuy(strings.ToUpper(c.Param("symbol")))
	if err != nil {
		errorResponse(c, statusFor(err), err.Error())
		return
	}
	successResponse(c, trade)
}

func (s *Server) handleForceSell(c *gin.Context) {
	trade, err := s.bot.ForceSell(strings.ToUpper(c.Param("symbol")))
	if err != nil {
		errorResponse(c, statusFor(err), err.Error())
		return
	}
	successResponse(c, trade)
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	var priceErr *bot.PriceUnavailableError
	switch {
	case errors.Is(err, bot.ErrUnknownSymbol),
		ledger.IsNoPosition(err),
		ledger.IsInsufficientFunds(err),
		errors.Is(err, ledger.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrPositionOpen),
		errors.Is(err, circuit.ErrDrawdownTripped),
		errors.Is(err, bot.ErrAlreadyRunning),
		errors.Is(err, bot.ErrNotRunning):
		return http.StatusConflict
	case errors.As(err, &priceErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
