package router

import (
	"context"

	"talent-match/internal/api/handler"
	"talent-match/internal/constants"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// TenantResolver 根据 API Key 查找租户
type TenantResolver func(apiKey string) (tenantID string, ok bool)

// contextKeyAPIKey 鉴权通过后原始 key 的存放位置，不对外暴露
const contextKeyAPIKey = "api_key"

// KeyAuth 校验 Authorization: Bearer <key>，并把对应租户写入请求上下文
func KeyAuth(resolve TenantResolver) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithContextKey(contextKeyAPIKey),
		keyauth.WithValidator(func(_ context.Context, c *app.RequestContext, key string) (bool, error) {
			tenantID, ok := resolve(key)
			if !ok {
				return false, nil
			}
			c.Set(constants.ContextKeyTenantID, tenantID)
			return true, nil
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, err error) {
			detail := "Invalid API key"
			if err == keyauth.ErrMissingOrMalformedAPIKey {
				detail = "Missing or malformed API key"
			}
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"detail": detail})
		}),
	)
}

// RegisterRoutes 注册 API 路由，/health 与 / 无需鉴权
func RegisterRoutes(h *server.Hertz, hd *handler.Handler, resolve TenantResolver) {
	h.GET("/", hd.Root)
	h.GET("/health", hd.Health)

	api := h.Group("/api/v1", KeyAuth(resolve))

	jobs := api.Group("/jobs")
	jobs.POST("/extract-requirements", hd.ExtractRequirements)
	jobs.POST("", hd.CreateJob)
	jobs.GET("", hd.ListJobs)
	jobs.GET("/:job_id", hd.GetJob)
	jobs.POST("/:job_id/upload-resumes", hd.UploadResumes)
	jobs.GET("/:job_id/candidates", hd.ListJobCandidates)

	candidates := api.Group("/candidates")
	candidates.PATCH("/:id/status", hd.UpdateCandidateStatus)
	candidates.DELETE("/:id", hd.DeleteCandidate)

	api.GET("/dashboard/stats", hd.DashboardStats)

	pool := api.Group("/talent-pool")
	pool.POST("/search", hd.Search)
	pool.GET("/stats", hd.IndexStats)
}
