package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/EO-DataHub/eodhp-directory-services/api/middleware"
	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxUploadSize = 1 << 20

// ModuleSummary describes a loaded module without its method table.
type ModuleSummary struct {
	Name        string   `json:"name"`
	Short       string   `json:"shortname"`
	Description string   `json:"description"`
	Methods     []string `json:"methods"`
}

// IndexService lists the loaded modules and their methods.
func IndexService(svc *Service, w http.ResponseWriter, r *http.Request) {
	var summaries []ModuleSummary
	for _, m := range metadata.Modules() {
		summaries = append(summaries, ModuleSummary{
			Name:        m.Name,
			Short:       m.Short,
			Description: m.Description,
			Methods:     m.MethodNames(),
		})
	}
	svc.WriteData(w, r, "loaded modules", summaries)
}

// ModulesService lists the names of the loaded modules.
func ModulesService(svc *Service, w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, m := range metadata.Modules() {
		names = append(names, m.Name)
	}
	svc.WriteData(w, r, "loaded modules", names)
}

// ModuleService lists the callable methods of a module.
func ModuleService(svc *Service, w http.ResponseWriter, r *http.Request) {
	module, ok := lookupModule(svc, w, r)
	if !ok {
		return
	}
	svc.WriteData(w, r, module.Description, module.MethodNames())
}

// MetadataService returns the full method table of a module.
func MetadataService(svc *Service, w http.ResponseWriter, r *http.Request) {
	module, ok := lookupModule(svc, w, r)
	if !ok {
		return
	}
	svc.WriteData(w, r, fmt.Sprintf("metadata for module: %s", module.Name), module)
}

// CallService validates the HTTP verb and access level for a module method,
// builds the call from the request form and dispatches it.
func CallService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	module, ok := lookupModule(svc, w, r)
	if !ok {
		return
	}

	callName := mux.Vars(r)["call"]
	method, ok := module.Method(callName)
	if !ok {
		logger.Warn().Str("module", module.Name).Str("call", callName).Msg("Unknown method")
		svc.HandleErrResponse(w, r, http.StatusNotFound,
			fmt.Errorf("%s: unknown method %s. valid methods are: %s", module.Name, callName, strings.Join(module.MethodNames(), " ")))
		return
	}

	// Each method answers on exactly one verb
	if r.Method != method.RESTType {
		svc.HandleErrResponse(w, r, http.StatusMethodNotAllowed,
			fmt.Errorf("%s/%s: method %s not allowed, use %s", module.Name, method.Name, r.Method, method.RESTType))
		return
	}

	if method.AdminOnly && middleware.AccessFrom(r.Context()) < middleware.AccessAdmin {
		logger.Warn().Str("module", module.Name).Str("call", method.Name).Msg("Admin access required")
		svc.HandleErrResponse(w, r, http.StatusForbidden,
			fmt.Errorf("%s/%s: administrator access required", module.Name, method.Name))
		return
	}

	call, err := parseCall(r, method)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid request payload")
		svc.HandleErrResponse(w, r, http.StatusBadRequest, err)
		return
	}

	data, err := svc.Directory.Handle(r.Context(), method.Op, call)
	if err != nil {
		status := StatusFor(err)
		event := logger.Warn()
		if status == http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).Str("module", module.Name).Str("call", method.Name).Msg("Call failed")
		svc.HandleErrResponse(w, r, status, err)
		return
	}

	logger.Info().Str("module", module.Name).Str("call", method.Name).Msg("Call completed")
	svc.WriteData(w, r, fmt.Sprintf("%s/%s", module.Name, method.Name), data)
}

func lookupModule(svc *Service, w http.ResponseWriter, r *http.Request) (*metadata.Module, bool) {
	name := mux.Vars(r)["module"]
	module, ok := metadata.LookupModule(name)
	if !ok {
		zerolog.Ctx(r.Context()).Warn().Str("module", name).Msg("Unknown module")
		svc.HandleErrResponse(w, r, http.StatusNotFound, fmt.Errorf("unknown module: %s", name))
		return nil, false
	}
	return module, true
}

// parseCall turns URL parameters, form fields and multipart uploads into a
// call. Repeated keys keep their first value.
func parseCall(r *http.Request, method *metadata.Method) (metadata.Call, error) {
	call := metadata.Call{Query: metadata.Query{}}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return call, directory.NewError(directory.KindMalformed, "invalid multipart form: %v", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return call, directory.NewError(directory.KindMalformed, "invalid form: %v", err)
	}

	for key, values := range r.Form {
		if len(values) > 0 {
			call.Query[key] = values[0]
		}
	}

	if r.MultipartForm == nil {
		return call, nil
	}
	for field, headers := range r.MultipartForm.File {
		if !acceptsFile(method, field) {
			return call, directory.NewError(directory.KindMalformed, "%s: unexpected file field %s", method.Name, field)
		}
		for _, fh := range headers {
			content, err := readUpload(fh)
			if err != nil {
				return call, err
			}
			call.Files = append(call.Files, bytes.NewReader(content))
		}
	}
	return call, nil
}

func acceptsFile(method *metadata.Method, field string) bool {
	for _, arg := range method.Args() {
		if arg.Name == field && arg.VarType == metadata.VarFile {
			return true
		}
	}
	return false
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	if len(content) > maxUploadSize {
		return nil, directory.NewError(directory.KindMalformed, "upload %s is too large", fh.Filename)
	}
	return content, nil
}
