package middlewares

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/gin-gonic/gin"
)

// Session is the cached session payload the gateway writes under Session:<token>.
type Session struct {
	TenantId string `json:"tenant_id"`
	UserId   int    `json:"user_id"`
	UserName string `json:"user_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// SessionMiddleware resolves the caller's tenant. A token header is validated
// against the redis session cache; without one, the x-tenant-id header from the
// upstream gateway is trusted (authentication itself lives outside this service).
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			if tenantId := c.Request.Header.Get("x-tenant-id"); tenantId != "" {
				ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
				if userId, err := strconv.Atoi(c.Request.Header.Get("x-user-id")); err == nil {
					ctx = utils.SetUserIdInContext(ctx, userId)
				}
				c.Request = c.Request.WithContext(ctx)
			}
			c.Next()
			return
		}

		var session Session
		exists, err := config.GetRedisObject("Session:"+token, &session)
		if err != nil || !exists || session.TenantId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetTenantIdInContext(ctx, session.TenantId)
		ctx = utils.SetUserIdInContext(ctx, session.UserId)
		ctx = utils.SetUserNameInContext(ctx, session.UserName)
		ctx = utils.SetIsAdminInContext(ctx, session.IsAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
