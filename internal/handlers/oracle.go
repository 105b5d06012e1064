package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ndharma28/omega-gaming/internal/models"
	"github.com/ndharma28/omega-gaming/internal/services"
)

// OracleHandler receives asynchronous fulfillment callbacks from the
// randomness oracle. The endpoint is authenticated by an HMAC signature
// over the raw body, not by JWT: the oracle is a machine peer, not a user.
type OracleHandler struct {
	lotteryService *services.LotteryService
	secret         string
}

func NewOracleHandler(lotteryService *services.LotteryService, secret string) *OracleHandler {
	return &OracleHandler{
		lotteryService: lotteryService,
		secret:         secret,
	}
}

func (h *OracleHandler) Fulfill(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("X-Oracle-Signature")
	if !services.VerifyPayload(h.secret, body, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid oracle signature"})
		return
	}

	var req models.FulfillRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	if req.CorrelationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "correlation_id required"})
		return
	}

	record, err := h.lotteryService.FulfillDraw(req.CorrelationID, req.RandomValue)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payout":  record,
	})
}
