package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyPrincipal is the gin context key for the resolved principal
	ContextKeyPrincipal = "authPrincipal"
	// ContextKeyAgentID is the gin context key for the authenticated agent id
	ContextKeyAgentID = "authAgentID"
	// ContextKeyRole is the gin context key for the authenticated role
	ContextKeyRole = "authRole"
)

// Middleware extracts and validates the bearer token from the request.
// Sets principal, agent id, and role in context when valid; never aborts.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if apiKey != "" {
			p, err := m.ValidateKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set(ContextKeyPrincipal, p)
				c.Set(ContextKeyAgentID, p.AgentID)
				c.Set(ContextKeyRole, string(p.Role))
			}
		}

		c.Next()
	}
}

// RequireAuth rejects requests without a valid principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyPrincipal); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer sk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAgent rejects requests not made by an agent or employee principal
// bound to an agent account.
func RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || p.AgentID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Agent credentials required.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests not made by an admin principal.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || p.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin credentials required.",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the principal from context (if authenticated)
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// AgentID returns the authenticated agent's id, or "".
func AgentID(c *gin.Context) string {
	v, exists := c.Get(ContextKeyAgentID)
	if !exists {
		return ""
	}
	id, _ := v.(string)
	return id
}
