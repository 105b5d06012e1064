package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ndharma28/omega-gaming/internal/config"
	"github.com/ndharma28/omega-gaming/internal/models"
	"github.com/ndharma28/omega-gaming/internal/services"
)

type AuthHandler struct {
	redisService *services.RedisService
	jwtService   *services.JWTService
	cfg          *config.Config
}

func NewAuthHandler(redisService *services.RedisService, jwtService *services.JWTService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		redisService: redisService,
		jwtService:   jwtService,
		cfg:          cfg,
	}
}

// Authenticate issues a session token for a participant address.
// TODO: verify a wallet signature over a challenge before issuing; the demo
// deployment trusts the supplied address.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	token, sessionID, err := h.jwtService.GenerateToken(req.Address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"session_id": sessionID,
		"address":    req.Address,
	})
}

func (h *AuthHandler) GetWallet(c *gin.Context) {
	address := c.GetString("address")

	wallet, err := h.redisService.GetWallet(address, h.cfg.StartingBalance, time.Now().Unix())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get wallet",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"wallet": models.BalanceResponse{
			Address:     wallet.Address,
			Balance:     wallet.Balance,
			TotalStaked: wallet.TotalStaked,
			TotalWon:    wallet.TotalWon,
		},
	})
}

func (h *AuthHandler) Deposit(c *gin.Context) {
	address := c.GetString("address")

	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	now := time.Now().Unix()
	if _, err := h.redisService.GetWallet(address, h.cfg.StartingBalance, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get wallet"})
		return
	}

	balance, err := h.redisService.CreditWallet(address, req.Amount, now)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": balance,
	})
}
