// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	drawsfeature "github.com/afgang/gangmail/internal/app/features/draws"
	healthfeature "github.com/afgang/gangmail/internal/app/features/health"
	"github.com/afgang/gangmail/internal/app/system/opsauth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for the draw service.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so the orchestrator, delivery manager,
// and dispatcher built during Startup are available here.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.GangMailMongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Draw and delivery trigger endpoints, guarded by the operator token.
	authz := opsauth.Middleware(appCfg.OpsTokenHash, logger)
	drawsHandler := drawsfeature.NewHandler(rt.orchestrator, rt.delivery, logger)
	r.Mount("/", drawsfeature.Routes(drawsHandler, authz))

	return r, nil
}
