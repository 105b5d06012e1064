package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ndharma28/omega-gaming/internal/models"
	"github.com/ndharma28/omega-gaming/internal/services"
)

type LotteryHandler struct {
	lotteryService *services.LotteryService
}

func NewLotteryHandler(lotteryService *services.LotteryService) *LotteryHandler {
	return &LotteryHandler{
		lotteryService: lotteryService,
	}
}

// statusForError maps the typed failure reasons onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrRoundNotFound),
		errors.Is(err, models.ErrUnknownCorrelation):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyFulfilled),
		errors.Is(err, models.ErrDuplicatePayout),
		errors.Is(err, models.ErrDrawInFlight):
		return http.StatusConflict
	case errors.Is(err, models.ErrTransferFailed):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrInvalidParameters),
		errors.Is(err, models.ErrRoundNotJoinable),
		errors.Is(err, models.ErrWrongFee),
		errors.Is(err, models.ErrNoPlayers),
		errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{
		"error": err.Error(),
	})
}

func parseRoundID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lottery id"})
		return 0, false
	}
	return id, true
}

func (h *LotteryHandler) CreateLottery(c *gin.Context) {
	var req models.CreateLotteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	round, err := h.lotteryService.CreateLottery(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"lottery": round,
	})
}

func (h *LotteryHandler) JoinLottery(c *gin.Context) {
	id, ok := parseRoundID(c)
	if !ok {
		return
	}
	address := c.GetString("address")

	var req models.JoinLotteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	round, err := h.lotteryService.JoinLottery(c.Request.Context(), id, address, req.FeePaid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"lottery": gin.H{
			"id":        round.ID,
			"total_pot": round.TotalPot,
			"players":   len(round.Players),
			"status":    round.Status,
		},
	})
}

func (h *LotteryHandler) RequestWinner(c *gin.Context) {
	id, ok := parseRoundID(c)
	if !ok {
		return
	}
	address := c.GetString("address")

	correlationID, err := h.lotteryService.RequestWinner(c.Request.Context(), id, address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":        true,
		"lottery_id":     id,
		"correlation_id": correlationID,
	})
}

func (h *LotteryHandler) CancelDraw(c *gin.Context) {
	id, ok := parseRoundID(c)
	if !ok {
		return
	}
	address := c.GetString("address")

	if err := h.lotteryService.CancelDraw(id, address); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"lottery_id": id,
		"status":     models.RoundStatusClosed,
	})
}

func (h *LotteryHandler) RetrySettlement(c *gin.Context) {
	id, ok := parseRoundID(c)
	if !ok {
		return
	}
	address := c.GetString("address")

	record, err := h.lotteryService.RetrySettlement(id, address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payout":  record,
	})
}

func (h *LotteryHandler) GetLottery(c *gin.Context) {
	id, ok := parseRoundID(c)
	if !ok {
		return
	}

	round, err := h.lotteryService.GetLottery(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"lottery": round,
	})
}

func (h *LotteryHandler) GetPlayers(c *gin.Context) {
	id, ok := parseRoundID(c)
	if !ok {
		return
	}

	players, err := h.lotteryService.GetPlayers(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"players": players,
		"count":   len(players),
	})
}

func (h *LotteryHandler) GetHistory(c *gin.Context) {
	fromRound, _ := strconv.ParseUint(c.DefaultQuery("from_round", "0"), 10, 64)
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 {
		limit = services.DefaultHistoryLimit
	}

	records, err := h.lotteryService.GetHistory(fromRound, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": records,
		"count":   len(records),
	})
}

func (h *LotteryHandler) GetEvents(c *gin.Context) {
	name := models.EventName(c.Query("name"))
	switch name {
	case models.EventRoundEntered, models.EventDrawRequested, models.EventWinnerPaid:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event name"})
		return
	}

	fromSeq, _ := strconv.ParseUint(c.DefaultQuery("from_seq", "0"), 10, 64)
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 {
		limit = services.DefaultHistoryLimit
	}

	events, err := h.lotteryService.GetEvents(name, fromSeq, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

func (h *LotteryHandler) GetOwner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"owner": h.lotteryService.Owner(),
	})
}

func (h *LotteryHandler) GetTreasury(c *gin.Context) {
	address, err := h.lotteryService.TreasuryAddress()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"treasury": address,
	})
}

func (h *LotteryHandler) SetTreasury(c *gin.Context) {
	address := c.GetString("address")

	var req models.SetTreasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if err := h.lotteryService.SetTreasury(address, req.Address); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"treasury": req.Address,
	})
}

func (h *LotteryHandler) GetCounter(c *gin.Context) {
	counter, err := h.lotteryService.RoundCounter()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lottery_id_counter": counter,
	})
}
