package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cabinet/internal/auth"
	authdomain "github.com/smallbiznis/cabinet/internal/auth/domain"
	"github.com/smallbiznis/cabinet/internal/auth/session"
	"github.com/smallbiznis/cabinet/internal/authorization"
	"github.com/smallbiznis/cabinet/internal/cabinet"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/config"
	"github.com/smallbiznis/cabinet/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/cabinet/internal/entitlement/domain"
	"github.com/smallbiznis/cabinet/internal/observability"
	obsmiddleware "github.com/smallbiznis/cabinet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cabinet/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cabinet/internal/observability/tracing"
	"github.com/smallbiznis/cabinet/internal/patient"
	patientdomain "github.com/smallbiznis/cabinet/internal/patient/domain"
	"github.com/smallbiznis/cabinet/internal/payment"
	"github.com/smallbiznis/cabinet/internal/plan"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"github.com/smallbiznis/cabinet/internal/processor"
	"github.com/smallbiznis/cabinet/internal/ratelimit"
	"github.com/smallbiznis/cabinet/internal/subscription"
	"github.com/smallbiznis/cabinet/internal/webhook"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	auth.Module,
	cabinet.Module,
	patient.Module,
	plan.Module,
	plan.SyncOnStart,
	subscription.Module,
	entitlement.Module,
	payment.Module,
	processor.Module,
	ratelimit.Module,
	webhook.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	authsvc        authdomain.Service
	sessions       *session.Manager
	authzSvc       authorization.Service
	cabinetSvc     cabinetdomain.Service
	patientSvc     patientdomain.Service
	planSvc        plandomain.Service
	entitlementSvc entitlementdomain.Service
	gateway        webhookdomain.Gateway
	limiter        *ratelimit.CabinetLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Authsvc        authdomain.Service
	Sessions       *session.Manager
	AuthzSvc       authorization.Service
	CabinetSvc     cabinetdomain.Service
	PatientSvc     patientdomain.Service
	PlanSvc        plandomain.Service
	EntitlementSvc entitlementdomain.Service
	Gateway        webhookdomain.Gateway
	Limiter        *ratelimit.CabinetLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		authsvc:        p.Authsvc,
		sessions:       p.Sessions,
		authzSvc:       p.AuthzSvc,
		cabinetSvc:     p.CabinetSvc,
		patientSvc:     p.PatientSvc,
		planSvc:        p.PlanSvc,
		entitlementSvc: p.EntitlementSvc,
		gateway:        p.Gateway,
		limiter:        p.Limiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhook", s.HandleWebhook)
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.Use(s.AuthRequired())
	api.Use(s.TenantScope())
	api.Use(s.RateLimit())

	api.GET("/subscription-status", s.RequirePermission(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionStatus)
	api.GET("/plans", s.RequirePermission(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)

	// -------- Patients --------
	api.GET("/patients", s.RequirePermission(authorization.ObjectPatient, authorization.ActionPatientView), s.ListPatients)
	api.POST("/patients",
		s.RequirePermission(authorization.ObjectPatient, authorization.ActionPatientCreate),
		s.RequireQuota(resourcePatients),
		s.CreatePatient,
	)
	api.GET("/patients/:id", s.RequirePermission(authorization.ObjectPatient, authorization.ActionPatientView), s.GetPatientByID)
	api.DELETE("/patients/:id", s.RequirePermission(authorization.ObjectPatient, authorization.ActionPatientDelete), s.DeletePatient)

	// -------- Cabinets --------
	admin := api.Group("/admin")
	admin.POST("/cabinets", s.RequirePermission(authorization.ObjectCabinet, authorization.ActionCabinetCreate), s.CreateCabinet)
	admin.GET("/cabinets/:id", s.RequirePermission(authorization.ObjectCabinet, authorization.ActionCabinetView), s.GetCabinetByID)
	admin.PATCH("/cabinets/:id", s.RequirePermission(authorization.ObjectCabinet, authorization.ActionCabinetUpdate), s.UpdateCabinet)
}
