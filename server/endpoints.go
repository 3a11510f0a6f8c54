package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/server/dao"
	"github.com/dekarrin/tunatalk/server/result"
	"github.com/dekarrin/tunatalk/server/serr"
	"github.com/go-chi/chi/v5"
)

func (tts *TunaTalkServer) newRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/", tts.httpEndpoint(tts.epConnect))
	r.Get("/send", tts.httpEndpoint(tts.epSend))
	r.Get("/echo", tts.httpEndpoint(tts.epEcho))
	r.Get("/login", tts.httpEndpoint(tts.epLogin))
	r.Get("/register", tts.httpEndpoint(tts.epRegister))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		result.NotFound().WriteResponse(w)
	})

	return r
}

// GET /: create a new guest session and greet it.
func (tts *TunaTalkServer) epConnect(req *http.Request) result.Result {
	sess, tok, err := tts.reg.Connect(req.Context())
	if err != nil {
		return result.InternalServerError("could not create session: %s", err.Error())
	}

	msgs, err := tts.mach.Hello(req.Context(), sess)
	if err != nil {
		tts.reg.Evict(sess)
		return result.InternalServerError("could not greet session: %s", err.Error())
	}

	resp := ConnectResponse{Token: tok, Messages: msgs}
	return result.OK(resp, "new session for %s", sess.Username())
}

// GET /send: feed one message to the session's current state.
func (tts *TunaTalkServer) epSend(req *http.Request) result.Result {
	q := req.URL.Query()
	if !q.Has("msg") || !q.Has("token") {
		return result.BadRequest("msg and token are required", "missing msg or token param")
	}

	sess, err := tts.reg.Resolve(req.Context(), q.Get("token"))
	if err != nil {
		return result.Forbidden(err.Error())
	}

	replies, exited, err := tts.mach.OnMessage(req.Context(), sess, q.Get("msg"))
	if err != nil {
		if errors.Is(err, machine.ErrLoginRequired) {
			return result.Unauthorized("", "user %s: %s", sess.Username(), err.Error())
		}
		return result.InternalServerError("user %s: %s", sess.Username(), err.Error())
	}

	if exited {
		tts.reg.Evict(sess)
	}

	resp := SendResponse{Messages: replies, Exited: exited}
	return result.OK(resp, "message from %s", sess.Username())
}

// GET /echo: report the session's idle time and fire any crossed timeouts.
func (tts *TunaTalkServer) epEcho(req *http.Request) result.Result {
	q := req.URL.Query()
	if !q.Has("seconds") || !q.Has("token") {
		return result.BadRequest("seconds and token are required", "missing seconds or token param")
	}

	seconds, err := strconv.Atoi(q.Get("seconds"))
	if err != nil || seconds < 0 {
		return result.BadRequest("seconds must be a non-negative number", "bad seconds param %q", q.Get("seconds"))
	}

	sess, err := tts.reg.Resolve(req.Context(), q.Get("token"))
	if err != nil {
		return result.Forbidden(err.Error())
	}

	replies, exited, _, err := tts.mach.OnTimeout(req.Context(), sess, seconds)
	if err != nil {
		if errors.Is(err, machine.ErrLoginRequired) {
			return result.Unauthorized("", "user %s: %s", sess.Username(), err.Error())
		}
		return result.InternalServerError("user %s: %s", sess.Username(), err.Error())
	}

	if exited {
		tts.reg.Evict(sess)
	}

	resp := EchoResponse{Messages: replies, Exited: exited, Reset: false}
	return result.OK(resp, "echo %ds from %s", seconds, sess.Username())
}

// GET /login: authenticate the session against a stored account. A failed
// login is not an HTTP error; it comes back 200 with a null token.
func (tts *TunaTalkServer) epLogin(req *http.Request) result.Result {
	q := req.URL.Query()
	if !q.Has("username") || !q.Has("passwd") || !q.Has("token") {
		return result.BadRequest("username, passwd, and token are required", "missing login param")
	}

	sess, err := tts.reg.Resolve(req.Context(), q.Get("token"))
	if err != nil {
		return result.Forbidden(err.Error())
	}

	tok, err := tts.reg.Login(req.Context(), sess, q.Get("username"), q.Get("passwd"))
	if err != nil {
		if errors.Is(err, dao.ErrBadCredentials) || errors.Is(err, dao.ErrNotFound) || errors.Is(err, serr.ErrAlreadyExists) {
			return result.OK(TokenResponse{}, "failed login as %s: %s", q.Get("username"), err.Error())
		}
		return result.InternalServerError("login as %s: %s", q.Get("username"), err.Error())
	}

	return result.OK(TokenResponse{Token: &tok}, "user %s logged in", q.Get("username"))
}

// GET /register: create a new account and log the session in as it. A name
// already taken is not an HTTP error; it comes back 200 with a null token.
func (tts *TunaTalkServer) epRegister(req *http.Request) result.Result {
	q := req.URL.Query()
	if !q.Has("username") || !q.Has("passwd") || !q.Has("token") {
		return result.BadRequest("username, passwd, and token are required", "missing register param")
	}

	sess, err := tts.reg.Resolve(req.Context(), q.Get("token"))
	if err != nil {
		return result.Forbidden(err.Error())
	}

	tok, err := tts.reg.Register(req.Context(), sess, q.Get("username"), q.Get("passwd"))
	if err != nil {
		if errors.Is(err, dao.ErrAlreadyExists) || errors.Is(err, serr.ErrAlreadyExists) {
			return result.OK(TokenResponse{}, "failed register as %s: %s", q.Get("username"), err.Error())
		}
		return result.InternalServerError("register as %s: %s", q.Get("username"), err.Error())
	}

	return result.OK(TokenResponse{Token: &tok}, "user %s registered", q.Get("username"))
}

type EndpointFunc func(req *http.Request) result.Result

func (tts *TunaTalkServer) httpEndpoint(ep EndpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		defer panicTo500(w, req)
		r := ep(req)

		// if this hasn't been properly created, output error directly and do
		// not try to read properties
		if r.Status == 0 {
			logHTTPResponse("ERROR", req, http.StatusInternalServerError, "endpoint result was never populated")
			http.Error(w, "An internal server error occurred", http.StatusInternalServerError)
			return
		}

		// pre-call PrepareMarshaledResponse bc if it fails in call to
		// WriteResponse, it will panic.
		if err := r.PrepareMarshaledResponse(); err != nil {
			newResp := result.Err(r.Status, "An internal server error occurred", "could not marshal JSON response: "+err.Error())
			newResp.WriteResponse(w)
			return
		}

		if r.IsErr {
			logHTTPResponse("ERROR", req, r.Status, r.InternalMsg)
		} else {
			logHTTPResponse("INFO", req, r.Status, r.InternalMsg)
		}

		if r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden || r.Status == http.StatusInternalServerError {
			// if it's one of these statuses, either the user is improperly
			// logging in or tried to access a forbidden resource, both of
			// which should force the wait time before responding.
			time.Sleep(tts.unauthedDelay)
		}

		r.WriteResponse(w)
	}
}

func panicTo500(w http.ResponseWriter, req *http.Request) (panicRecovered bool) {
	if panicErr := recover(); panicErr != nil {
		logHTTPResponse("ERROR", req, http.StatusInternalServerError, fmt.Sprintf("panic: %v", panicErr))
		result.TextErr(
			http.StatusInternalServerError,
			"An internal server error occurred",
			fmt.Sprintf("panic: %v\nSTACK TRACE: %s", panicErr, string(debug.Stack())),
		).WriteResponse(w)
		return true
	}
	return false
}

func logHTTPResponse(level string, req *http.Request, respStatus int, msg string) {
	if len(level) > 5 {
		level = level[0:5]
	}

	for len(level) < 5 {
		level += " "
	}

	// we don't really care about the ephemeral port from the client end
	remoteAddrParts := strings.SplitN(req.RemoteAddr, ":", 2)
	remoteIP := remoteAddrParts[0]

	log.Printf("%s %s %s %s: HTTP-%d %s", level, remoteIP, req.Method, req.URL.Path, respStatus, msg)
}
