// Copyright 2026 civicledger
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/hertz-contrib/jwt"

	"civicledger/internal/api/http/middleware"
	"civicledger/pkg/auth"
	"civicledger/pkg/config"
)

// Router HTTP 路由器
type Router struct {
	handler *Handler
	mw      *middleware.Middleware
	authz   *middleware.AuthZMiddleware
	jwtAuth *jwt.HertzJWTMiddleware
	audit   *middleware.AuditMiddleware
	apiCfg  config.APIConfig
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, apiCfg config.APIConfig) *Router {
	return &Router{
		handler: handler,
		mw:      mw,
		authz:   middleware.NewAuthZMiddleware(),
		apiCfg:  apiCfg,
	}
}

// SetJWT 启用 JWT 认证
func (r *Router) SetJWT(jwtAuth *jwt.HertzJWTMiddleware) {
	r.jwtAuth = jwtAuth
}

// SetAudit 启用访问审计
func (r *Router) SetAudit(audit *middleware.AuditMiddleware) {
	r.audit = audit
}

// Build 构造 Hertz 服务并挂载全部路由
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	all := append([]hertzconfig.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(all...)
	r.Register(h)
	return h
}

// Register 挂载路由到既有服务实例，测试直接使用
func (r *Router) Register(h *server.Hertz) {
	if r.apiCfg.CORS.Enable {
		h.Use(r.mw.CORS(r.apiCfg.CORS.AllowOrigins))
	}
	if r.apiCfg.Middleware.RateLimit {
		h.Use(r.mw.RateLimit(r.apiCfg.Middleware.RateLimitRPS))
	}

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	if r.jwtAuth != nil {
		api.POST("/login", r.jwtAuth.LoginHandler)
		api.GET("/refresh-token", r.jwtAuth.RefreshHandler)
		api.Use(r.jwtAuth.MiddlewareFunc())
		api.Use(middleware.IdentityToContext())
	} else {
		api.Use(r.authz.Identity())
	}
	if r.audit != nil {
		api.Use(r.audit.AuditAccess())
	}

	r.registerProjects(api)
	r.registerExpenditures(api)
	r.registerComplaints(api)
	r.registerLedger(api)
}

func (r *Router) registerProjects(api *route.RouterGroup) {
	projects := api.Group("/projects")
	projects.GET("", r.handler.ListProjects)
	projects.GET("/:id", r.handler.GetProject)
	projects.GET("/:id/expenditures", r.handler.ListExpenditures)
	projects.GET("/:id/complaints", r.handler.ListComplaints)
	projects.POST("", r.authz.RequirePermission(auth.PermissionProjectCreate), r.handler.CreateProject)
	projects.PUT("/:id/budget", r.authz.RequirePermission(auth.PermissionBudgetRevise), r.handler.ReviseProjectBudget)
}

func (r *Router) registerExpenditures(api *route.RouterGroup) {
	exp := api.Group("/expenditures")
	exp.GET("/:id", r.handler.GetExpenditure)
	exp.POST("", r.authz.RequirePermission(auth.PermissionExpenditureWrite), r.handler.AddExpenditure)
	exp.POST("/:id/approve", r.authz.RequirePermission(auth.PermissionExpenditureAudit), r.handler.ApproveExpenditure)
	exp.POST("/:id/revoke", r.authz.RequirePermission(auth.PermissionExpenditureAudit), r.handler.RevokeExpenditure)
}

func (r *Router) registerComplaints(api *route.RouterGroup) {
	comp := api.Group("/complaints")
	comp.GET("/:id", r.handler.GetComplaint)
	comp.POST("", r.authz.RequirePermission(auth.PermissionComplaintSubmit), r.handler.SubmitComplaint)
	comp.POST("/:id/resolve", r.authz.RequirePermission(auth.PermissionComplaintResolve), r.handler.ResolveComplaint)
	comp.POST("/:id/reject", r.authz.RequirePermission(auth.PermissionComplaintResolve), r.handler.RejectComplaint)
}

func (r *Router) registerLedger(api *route.RouterGroup) {
	ledger := api.Group("/ledger")
	ledger.GET("/status", r.handler.LedgerStatus)
	ledger.POST("/verify/project/:id", r.authz.RequirePermission(auth.PermissionLedgerVerify), r.handler.VerifyProject)
	ledger.POST("/verify/expenditure/:id", r.authz.RequirePermission(auth.PermissionLedgerVerify), r.handler.VerifyExpenditure)
	ledger.POST("/verify/complaint/:id", r.authz.RequirePermission(auth.PermissionLedgerVerify), r.handler.VerifyComplaint)
	ledger.POST("/register-address", r.handler.RegisterAddress)
	ledger.POST("/officials", r.authz.RequirePermission(auth.PermissionOfficialManage), r.handler.AddOfficial)
	ledger.DELETE("/officials/:address", r.authz.RequirePermission(auth.PermissionOfficialManage), r.handler.RemoveOfficial)
}
