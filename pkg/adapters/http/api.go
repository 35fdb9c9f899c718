package http

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

//go:embed openapi.yaml
var specYAML []byte

func rawSpec() ([]byte, error) {
	return specYAML, nil
}

// GetSwagger parses the embedded OpenAPI document.
func GetSwagger() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("error loading embedded spec: %w", err)
	}
	return doc, nil
}

// RunWorkflowParams are the parameters of POST /v1/steps/run-workflow.
type RunWorkflowParams struct {
	XRelayUser string
}

// ListExecutionsParams are the parameters of GET /v1/executions.
type ListExecutionsParams struct {
	WorkflowId *string
	Status     *string
	Limit      *int
}

// ServerInterface is implemented by Server. Bodies are read by the handlers;
// parameters are bound by ServerInterfaceWrapper.
type ServerInterface interface {
	GetInfo(w http.ResponseWriter, r *http.Request)
	RunCommand(w http.ResponseWriter, r *http.Request)
	RunAgent(w http.ResponseWriter, r *http.Request)
	RunWorkflow(w http.ResponseWriter, r *http.Request, params RunWorkflowParams)
	ListExecutions(w http.ResponseWriter, r *http.Request, params ListExecutionsParams)
	GetExecution(w http.ResponseWriter, r *http.Request, id string)
}

type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper binds typed parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) wrap(h http.Handler) http.Handler {
	for _, mw := range siw.HandlerMiddlewares {
		h = mw(h)
	}
	return h
}

func (siw *ServerInterfaceWrapper) GetInfo(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetInfo)).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) RunCommand(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.RunCommand)).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) RunAgent(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.RunAgent)).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	var params RunWorkflowParams

	values, found := r.Header[http.CanonicalHeaderKey("X-Relay-User")]
	if !found || len(values) != 1 {
		siw.ErrorHandlerFunc(w, r, &ParamError{Name: "X-Relay-User", Err: fmt.Errorf("expected exactly one value")})
		return
	}
	err := runtime.BindStyledParameterWithOptions("simple", "X-Relay-User", values[0], &params.XRelayUser,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationHeader, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &ParamError{Name: "X-Relay-User", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.RunWorkflow(w, r, params)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) ListExecutions(w http.ResponseWriter, r *http.Request) {
	var params ListExecutionsParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "workflowId", query, &params.WorkflowId); err != nil {
		siw.ErrorHandlerFunc(w, r, &ParamError{Name: "workflowId", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", query, &params.Status); err != nil {
		siw.ErrorHandlerFunc(w, r, &ParamError{Name: "status", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &params.Limit); err != nil {
		siw.ErrorHandlerFunc(w, r, &ParamError{Name: "limit", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListExecutions(w, r, params)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) GetExecution(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &ParamError{Name: "id", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetExecution(w, r, id)
	})).ServeHTTP(w, r)
}

// ParamError reports a parameter that could not be bound.
type ParamError struct {
	Name string
	Err  error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %v", e.Name, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux registers the API routes on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/v1/info", wrapper.GetInfo)
		r.Post(options.BaseURL+"/v1/steps/command", wrapper.RunCommand)
		r.Post(options.BaseURL+"/v1/steps/agent", wrapper.RunAgent)
		r.Post(options.BaseURL+"/v1/steps/run-workflow", wrapper.RunWorkflow)
		r.Get(options.BaseURL+"/v1/executions", wrapper.ListExecutions)
		r.Get(options.BaseURL+"/v1/executions/{id}", wrapper.GetExecution)
	})
	return r
}
