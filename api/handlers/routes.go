package handlers

import (
	"net/http"

	"github.com/EO-DataHub/eodhp-directory-services/api/middleware"
	"github.com/EO-DataHub/eodhp-directory-services/api/services"
	"github.com/EO-DataHub/eodhp-directory-services/internal/appconfig"
	"github.com/gorilla/mux"
)

// NewRouter registers every directory route behind logging and authentication.
func NewRouter(svc *services.Service, apiCfg appconfig.APIConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithLogger)
	r.Use(middleware.Authenticate(apiCfg))

	// Fixed routes are registered before the module patterns they overlap
	r.HandleFunc("/", Index(svc)).Methods(http.MethodGet)
	r.HandleFunc("/modules", Modules(svc)).Methods(http.MethodGet)
	r.HandleFunc("/{module}", Module(svc)).Methods(http.MethodGet)
	r.HandleFunc("/{module}/metadata", Metadata(svc)).Methods(http.MethodGet)
	r.HandleFunc("/{module}/{call}", Call(svc))

	return r
}
