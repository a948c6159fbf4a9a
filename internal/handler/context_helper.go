package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-placement-api/internal/middleware"
	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the caller as a service actor. Routes are mounted
// behind JWT, so a missing claim only happens in wiring mistakes.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Actor{}, false
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role}, true
}

func pageParams(c *gin.Context) (int, int) {
	return queryInt(c, "page", 1), queryInt(c, "limit", 20)
}
