package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"testctl/internal/events"
	"testctl/internal/resulttree"
	"testctl/pkg/logging"
)

// Backend is what the transport layer drives. Identifiers are raw node id
// strings; the empty string is the root.
type Backend interface {
	GetTree(ctx context.Context) (*resulttree.Serialized, error)
	GetNode(ctx context.Context, id string) (*resulttree.Serialized, error)
	RunTests(ctx context.Context, id string) (string, error)
	StartEnvironment(ctx context.Context, id string) error
	StopEnvironment(ctx context.Context, id string) error
	SubscribeUpdates(bufferSize int) *events.EventSubscription
	Unsubscribe(sub *events.EventSubscription)
}

// Config holds the listen address and optional surfaces.
type Config struct {
	Host      string
	Port      int
	EnableMCP bool
	Version   string
}

// Server serves the HTTP API, the websocket update stream and, when
// enabled, the MCP tools.
type Server struct {
	config   Config
	backend  Backend
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	mcp *mcpserver.MCPServer
	sse *mcpserver.SSEServer

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a server for backend. Nothing listens until Start.
func New(config Config, backend Backend) *Server {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Version == "" {
		config.Version = "dev"
	}

	s := &Server{
		config:  config,
		backend: backend,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The UI may be served from another origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.mux.HandleFunc("GET /api/v1/result-tree", s.handleGetTree)
	s.mux.HandleFunc("GET /api/v1/node", s.handleGetNode)
	s.mux.HandleFunc("POST /api/v1/run", s.handleRun)
	s.mux.HandleFunc("POST /api/v1/environment/start", s.handleStartEnvironment)
	s.mux.HandleFunc("POST /api/v1/environment/stop", s.handleStopEnvironment)
	s.mux.HandleFunc("GET /ws", s.handleWebsocket)

	if config.EnableMCP {
		s.mcp = newMCPServer(backend, config.Version)
		opts := []mcpserver.SSEOption{
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
			mcpserver.WithKeepAlive(true),
			mcpserver.WithKeepAliveInterval(30 * time.Second),
		}
		// With an ephemeral port the message endpoint stays relative and
		// clients resolve it against the URL they connected to.
		if config.Port != 0 {
			opts = append(opts, mcpserver.WithBaseURL(fmt.Sprintf("http://%s:%d", displayHost(config.Host), config.Port)))
		}
		s.sse = mcpserver.NewSSEServer(s.mcp, opts...)
		s.mux.Handle("/sse", s.sse)
		s.mux.Handle("/message", s.sse)
	}
	return s
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start binds the listen address and serves in the background. Binding
// errors are returned; serving errors are logged.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return fmt.Errorf("server already started")
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpServer := s.httpServer
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server", err, "HTTP server stopped")
		}
	}()

	logging.Info("Server", "Listening on http://%s:%d/", displayHost(s.config.Host), ln.Addr().(*net.TCPAddr).Port)
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes websocket streams and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if s.sse != nil {
		if err := s.sse.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Server", "Error shutting down MCP SSE server: %v", err)
		}
	}
	err := httpServer.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}

// displayHost maps the wildcard addresses to something a browser can open.
func displayHost(host string) string {
	if host == "0.0.0.0" || host == "::" {
		return "localhost"
	}
	return host
}
