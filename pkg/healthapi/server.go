package healthapi

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humagin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edoardooldani/honeysensor/pkg/version"
)

const headerTimeout = 30 * time.Second
const maxMultipartMemory = 32 << 20

// ReadyFunc reports whether the owning binary has finished initializing
// and may report a free-form reason when it has not.
type ReadyFunc func() (bool, string)

// StatusFunc returns a binary-specific status payload, serialized as-is
// into the /status response body.
type StatusFunc func() any

// Option configures a Server at construction time.
type Option func(*Server)

// WithDebugMode runs the underlying gin engine in debug mode.
func WithDebugMode(enabled bool) Option {
	return func(s *Server) { s.debug = enabled }
}

// WithReadyCheck wires a readiness probe into /-/ready.
func WithReadyCheck(fn ReadyFunc) Option {
	return func(s *Server) { s.readyFn = fn }
}

// WithStatus wires a status reporter into /-/status.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.statusFn = fn }
}

// Server is the shared health/info/status/metrics HTTP surface used by
// both honeysensor and honeycollector.
type Server struct {
	serviceName string
	addr        string
	debug       bool

	readyFn  ReadyFunc
	statusFn StatusFunc

	router *gin.Engine
	api    huma.API
	srv    *http.Server
}

// New builds a Server bound to addr, registering health/info/ready/status
// routes plus a Prometheus /metrics endpoint.
func New(serviceName, addr string, opts ...Option) *Server {
	s := &Server{
		serviceName: strings.ToLower(serviceName),
		addr:        addr,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Recovery())

	s.router = router
	s.api = humagin.New(router, huma.DefaultConfig(serviceName, version.Short()))

	s.registerRoutes()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// API exposes the huma API so callers can register additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// OpenAPI writes the generated OpenAPI document to w.
func (s *Server) OpenAPI(w io.Writer) error {
	b, err := s.api.OpenAPI().DowngradeYAML()
	if err != nil {
		return fmt.Errorf("healthapi: generate openapi spec: %w", err)
	}
	_, err = w.Write(b)
	return err
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        HealthRoute,
		Summary:     "Get process health",
		Tags:        []string{"Info"},
	}, s.healthHandler())

	huma.Register(s.api, huma.Operation{
		OperationID: "get-ready",
		Method:      http.MethodGet,
		Path:        ReadyRoute,
		Summary:     "Get process readiness",
		Tags:        []string{"Info"},
	}, s.readyHandler())

	huma.Register(s.api, huma.Operation{
		OperationID: "get-info",
		Method:      http.MethodGet,
		Path:        InfoRoute,
		Summary:     "Get service info",
		Tags:        []string{"Info"},
	}, s.infoHandler())

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        StatusRoute,
		Summary:     "Get component status",
		Tags:        []string{"Status"},
	}, s.statusHandler())
}

// HealthOutput is the body of /-/health.
type HealthOutput struct {
	Body struct {
		Status string `json:"status" doc:"Health status of the process" example:"healthy"`
	}
}

func (s *Server) healthHandler() func(context.Context, *struct{}) (*HealthOutput, error) {
	return func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{}
		out.Body.Status = healthy
		return out, nil
	}
}

// ReadyOutput is the body of /-/ready.
type ReadyOutput struct {
	Body struct {
		Status string `json:"status" doc:"Readiness status of the process" example:"ready"`
		Reason string `json:"reason,omitempty" doc:"Reason readiness has not been reached"`
	}
}

func (s *Server) readyHandler() func(context.Context, *struct{}) (*ReadyOutput, error) {
	return func(ctx context.Context, _ *struct{}) (*ReadyOutput, error) {
		out := &ReadyOutput{}
		if s.readyFn == nil {
			out.Body.Status = ready
			return out, nil
		}
		ok, reason := s.readyFn()
		if !ok {
			out.Body.Status = notYet
			out.Body.Reason = reason
			return out, huma.Error503ServiceUnavailable(reason)
		}
		out.Body.Status = ready
		return out, nil
	}
}

// ServiceInfo summarizes the running service's name, version, and commit.
type ServiceInfo struct {
	Name    string `json:"name" doc:"Service name" example:"honeysensor"`
	Version string `json:"version" doc:"Service version"`
	Commit  string `json:"commit,omitempty" doc:"Full git commit SHA"`
	Pod     string `json:"pod,omitempty" doc:"Name of kubernetes pod, if available"`
}

// InfoOutput is the body of /-/info.
type InfoOutput struct {
	Body struct {
		*ServiceInfo
	}
}

func (s *Server) infoHandler() func(context.Context, *struct{}) (*InfoOutput, error) {
	info := &ServiceInfo{
		Name:    s.serviceName,
		Version: version.Short(),
		Commit:  version.GitSHA,
	}
	for _, env := range []string{"POD_NAME", "POD", "PODNAME"} {
		if v := os.Getenv(env); v != "" {
			info.Pod = v
			break
		}
	}
	return func(ctx context.Context, _ *struct{}) (*InfoOutput, error) {
		out := &InfoOutput{}
		out.Body.ServiceInfo = info
		return out, nil
	}
}

// StatusOutput is the body of /-/status.
type StatusOutput struct {
	Body any
}

func (s *Server) statusHandler() func(context.Context, *struct{}) (*StatusOutput, error) {
	return func(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
		out := &StatusOutput{}
		if s.statusFn != nil {
			out.Body = s.statusFn()
		} else {
			out.Body = struct{}{}
		}
		return out, nil
	}
}

// Serve starts the HTTP server and blocks until it returns an error.
func (s *Server) Serve() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: headerTimeout,
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("healthapi: listen on %s: %w", s.addr, err)
	}
	return s.srv.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
