// Package server implements the TunaTalk HTTP server. It loads the dialog
// script named by its Config, compiles it, and serves the conversational API
// over plain GET endpoints with query-string arguments.
package server

import (
	"log"
	"net/http"
	"time"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/dekarrin/tunatalk/server/dao"
	"github.com/dekarrin/tunatalk/server/registry"
	"github.com/go-chi/chi/v5"
)

// TunaTalkServer is an HTTP server that runs one compiled dialog script and
// tracks the sessions conversing with it. The zero-value of a TunaTalkServer
// should not be used directly; call New() to get one ready for use.
type TunaTalkServer struct {
	router chi.Router
	mach   *machine.Machine
	store  dao.VariableStore
	reg    *registry.Registry

	unauthedDelay time.Duration
}

// New creates a TunaTalkServer from the given config: it parses and compiles
// the configured script sources, opens the variable store, and starts the
// session registry. A script problem is returned as a *script.GrammarError.
func New(cfg Config) (*TunaTalkServer, error) {
	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prog, err := script.ParseFiles(cfg.Sources)
	if err != nil {
		return nil, err
	}

	graph, schema, err := machine.Build(prog)
	if err != nil {
		return nil, err
	}

	store, err := cfg.connectStore(schema)
	if err != nil {
		return nil, err
	}

	tts := &TunaTalkServer{
		mach:          machine.NewMachine(graph, schema, store),
		store:         store,
		reg:           registry.New(store, []byte(cfg.Key), cfg.SessionTTL()),
		unauthedDelay: cfg.UnauthDelay(),
	}
	tts.router = tts.newRouter()

	return tts, nil
}

// ServeForever begins listening on the given address for HTTP client
// requests. It only returns on listener failure.
func (tts *TunaTalkServer) ServeForever(address string) error {
	log.Printf("INFO  Listening on %s", address)
	return http.ListenAndServe(address, tts.router)
}

// ServeHTTP implements http.Handler so the server can be mounted under a
// test mux or an outer router.
func (tts *TunaTalkServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	tts.router.ServeHTTP(w, req)
}

// Close stops the session registry and closes the variable store.
func (tts *TunaTalkServer) Close() error {
	tts.reg.Close()
	return tts.store.Close()
}
