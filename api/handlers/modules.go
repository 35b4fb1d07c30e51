package handlers

import (
	"net/http"

	"github.com/EO-DataHub/eodhp-directory-services/api/services"
)

func Index(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.IndexService(svc, w, r)
	}
}

func Modules(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.ModulesService(svc, w, r)
	}
}

func Module(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.ModuleService(svc, w, r)
	}
}

func Metadata(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.MetadataService(svc, w, r)
	}
}

func Call(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.CallService(svc, w, r)
	}
}
