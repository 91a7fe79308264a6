package api

import (
	"net/http"

	"escrow-node/api/handlers"
	"escrow-node/internal/escrow"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the escrow workflow endpoints.
func SetupRouter(svc *escrow.Service) *gin.Engine {
	router := gin.Default()
	h := handlers.NewEscrowHandler(svc)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	router.GET("/coordinator-key", h.CoordinatorKey)

	router.POST("/escrows", h.CreateEscrow)
	router.GET("/escrows/:id", h.GetEscrow)
	router.GET("/escrows/:id/shares/:index", h.GetHolderShare)
	router.POST("/escrows/:id/reveal", h.RequestReveal)

	router.GET("/reveals/:id", h.GetRevealRequest)
	router.POST("/reveals/:id/votes", h.VoteOnReveal)
	router.POST("/reveals/:id/shares", h.SubmitShare)
	router.POST("/reveals/:id/reconstruct", h.Reconstruct)

	return router
}
