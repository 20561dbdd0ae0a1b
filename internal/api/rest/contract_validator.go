package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// ContractValidator checks HTTP exchanges against the OpenAPI document in
// api/openapi.yaml. It backs the contract test suite; handlers never consult
// it at runtime.
type ContractValidator struct {
	doc    *openapi3.T
	router routers.Router
	opts   *openapi3filter.Options
}

// NewContractValidator loads the OpenAPI document at specPath, validates the
// document itself, and builds a route matcher over it.
func NewContractValidator(specPath string) (*ContractValidator, error) {
	loader := &openapi3.Loader{Context: context.Background(), IsExternalRefsAllowed: true}

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("openapi document is invalid: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	return &ContractValidator{
		doc:    doc,
		router: router,
		// The contract checks shapes. Whether a bearer token is genuine
		// is the live server's concern, not the document's.
		opts: &openapi3filter.Options{
			AuthenticationFunc:    openapi3filter.NoopAuthenticationFunc,
			IncludeResponseStatus: true,
		},
	}, nil
}

// ValidateRequest checks that req matches a documented operation, including
// path and query parameters and the request body.
func (cv *ContractValidator) ValidateRequest(req *http.Request) error {
	route, pathParams, err := cv.router.FindRoute(req)
	if err != nil {
		return fmt.Errorf("no documented route for %s %s: %w", req.Method, req.URL.Path, err)
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options:    cv.opts,
	}
	if err := openapi3filter.ValidateRequest(context.Background(), input); err != nil {
		return fmt.Errorf("request does not match contract: %w", err)
	}
	return nil
}

// ValidateResponse checks resp against the documented responses of the
// operation matching req: the status code must be documented and the body
// must satisfy its schema. The body is consumed and restored so the caller
// can still read it.
func (cv *ContractValidator) ValidateResponse(req *http.Request, resp *http.Response) error {
	route, pathParams, err := cv.router.FindRoute(req)
	if err != nil {
		return fmt.Errorf("no documented route for %s %s: %w", req.Method, req.URL.Path, err)
	}

	var body []byte
	if resp.Body != nil {
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
			Options:    cv.opts,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
	}
	input.SetBodyBytes(body)

	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		return fmt.Errorf("response does not match contract: %w", err)
	}
	return nil
}

// ValidateSchema checks decoded JSON data against a named component schema.
func (cv *ContractValidator) ValidateSchema(name string, data interface{}) error {
	if cv.doc.Components == nil {
		return fmt.Errorf("document defines no component schemas")
	}
	ref, ok := cv.doc.Components.Schemas[name]
	if !ok || ref.Value == nil {
		return fmt.Errorf("schema %q is not defined", name)
	}
	if err := ref.Value.VisitJSON(data); err != nil {
		return fmt.Errorf("value does not match schema %q: %w", name, err)
	}
	return nil
}
