package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ndharma28/omega-gaming/internal/config"
	"github.com/ndharma28/omega-gaming/internal/handlers"
	"github.com/ndharma28/omega-gaming/internal/middleware"
	"github.com/ndharma28/omega-gaming/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)
	oracleClient := services.NewOracleClient(cfg)

	wsHandler := handlers.NewWebSocketHandler(redisService, cfg)
	lotteryService := services.NewLotteryService(redisService, oracleClient, wsHandler, cfg)

	authHandler := handlers.NewAuthHandler(redisService, jwtService, cfg)
	lotteryHandler := handlers.NewLotteryHandler(lotteryService)
	oracleHandler := handlers.NewOracleHandler(lotteryService, cfg.OracleSecret)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.POST("/auth/token", authHandler.Authenticate)

	// Oracle fulfillment is HMAC-authenticated, not JWT.
	router.POST("/oracle/fulfill", oracleHandler.Fulfill)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService))
	{
		protected.GET("/wallet", authHandler.GetWallet)
		protected.POST("/wallet/deposit", authHandler.Deposit)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		lotteries := protected.Group("/lotteries")
		{
			lotteries.POST("", lotteryHandler.CreateLottery)
			lotteries.GET("/:id", lotteryHandler.GetLottery)
			lotteries.GET("/:id/players", lotteryHandler.GetPlayers)
			lotteries.POST("/:id/join", lotteryHandler.JoinLottery)
			lotteries.POST("/:id/draw", lotteryHandler.RequestWinner)
			lotteries.POST("/:id/draw/cancel", lotteryHandler.CancelDraw)
			lotteries.POST("/:id/settle", lotteryHandler.RetrySettlement)
		}

		protected.GET("/history", lotteryHandler.GetHistory)
		protected.GET("/events", lotteryHandler.GetEvents)
		protected.GET("/counter", lotteryHandler.GetCounter)
		protected.GET("/owner", lotteryHandler.GetOwner)
		protected.GET("/treasury", lotteryHandler.GetTreasury)
		protected.PUT("/treasury", lotteryHandler.SetTreasury)
	}

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
