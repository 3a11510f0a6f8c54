// Package registry tracks the live sessions of a TunaTalk server. It hands
// out the bearer tokens that identify a session across requests, maps tokens
// back to sessions, performs login and registration against the variable
// store, and evicts sessions whose TTL lapses without any request re-arming
// it.
package registry

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/server/dao"
	"github.com/dekarrin/tunatalk/server/serr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type entry struct {
	sess *machine.Session

	// gen invalidates scheduled expiries issued before the last re-arm.
	gen      uint64
	deadline time.Time
}

// Registry is the set of live sessions, keyed by username. All map and heap
// access happens under mu; the session's own mutex never needs to be held at
// the same time.
type Registry struct {
	mu    sync.Mutex
	users map[string]*entry
	exp   expiryHeap

	store  dao.VariableStore
	secret []byte
	ttl    time.Duration

	wake chan struct{}
	done chan struct{}
}

// New creates a Registry whose sessions live for ttl between requests,
// signing tokens with the given secret, and starts its eviction dispatcher.
// Call Close to stop the dispatcher.
func New(store dao.VariableStore, secret []byte, ttl time.Duration) *Registry {
	reg := &Registry{
		users:  make(map[string]*entry),
		store:  store,
		secret: secret,
		ttl:    ttl,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go reg.dispatch()
	return reg
}

// Connect creates a new guest session under a fresh Guest_ name and returns
// it together with its bearer token.
func (reg *Registry) Connect(ctx context.Context) (*machine.Session, string, error) {
	reg.mu.Lock()

	name := fmt.Sprintf("Guest_%d", time.Now().UnixNano())
	for _, taken := reg.users[name]; taken; _, taken = reg.users[name] {
		name = fmt.Sprintf("Guest_%d", time.Now().UnixNano())
	}

	sess := machine.NewSession(name)
	reg.insert(name, sess)
	reg.mu.Unlock()

	tok, err := reg.generateToken(name)
	if err != nil {
		reg.Evict(sess)
		return nil, "", err
	}
	return sess, tok, nil
}

// Resolve maps a bearer token back to its live session and re-arms the
// session's TTL. Any parse or lookup failure comes back as
// serr.ErrInvalidToken; in particular a token whose session has already been
// evicted is invalid even when its signature still checks out.
func (reg *Registry) Resolve(ctx context.Context, token string) (*machine.Session, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return reg.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, serr.New("cannot parse token", err, serr.ErrInvalidToken)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, serr.New("token carries no claims", serr.ErrInvalidToken)
	}
	name, ok := claims["username"].(string)
	if !ok {
		return nil, serr.New("token carries no username", serr.ErrInvalidToken)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	ent, ok := reg.users[name]
	if !ok {
		return nil, serr.New(fmt.Sprintf("no live session for %s", name), serr.ErrInvalidToken)
	}

	reg.rearm(name, ent)
	return ent.sess, nil
}

// Login authenticates the session against the stored credentials and renames
// it to the account name. The shared Guest row cannot be logged in to, and
// the account name must not already have a live session. On success the
// caller gets a fresh token bound to the new name; the old token stops
// resolving.
func (reg *Registry) Login(ctx context.Context, sess *machine.Session, username, passwd string) (string, error) {
	if username == machine.GuestUser {
		return "", dao.ErrNotFound
	}

	if err := reg.store.Verify(ctx, username, passwd); err != nil {
		return "", err
	}

	if err := reg.rename(sess, username); err != nil {
		return "", err
	}
	return reg.generateToken(username)
}

// Register creates the account row with every variable at its default, then
// logs the session in under the new name. Registration fails with
// dao.ErrAlreadyExists when the account already has a row.
func (reg *Registry) Register(ctx context.Context, sess *machine.Session, username, passwd string) (string, error) {
	if username == machine.GuestUser {
		return "", dao.ErrAlreadyExists
	}

	if err := reg.store.InsertDefault(ctx, username, passwd); err != nil {
		return "", err
	}

	if err := reg.rename(sess, username); err != nil {
		return "", err
	}
	return reg.generateToken(username)
}

// Evict removes the session from the registry; its token stops resolving
// immediately.
func (reg *Registry) Evict(sess *machine.Session) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	name := sess.Username()
	if ent, ok := reg.users[name]; ok && ent.sess == sess {
		delete(reg.users, name)
	}
}

// Sessions returns the number of live sessions.
func (reg *Registry) Sessions() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.users)
}

// Close stops the eviction dispatcher. Live sessions are left in place.
func (reg *Registry) Close() error {
	close(reg.done)
	return nil
}

// insert adds a fresh entry and schedules its expiry. Caller holds mu.
func (reg *Registry) insert(name string, sess *machine.Session) {
	ent := &entry{sess: sess}
	reg.users[name] = ent
	reg.rearm(name, ent)
}

// rearm pushes the entry's deadline out by the TTL. Caller holds mu.
func (reg *Registry) rearm(name string, ent *entry) {
	ent.gen++
	ent.deadline = time.Now().Add(reg.ttl)
	heap.Push(&reg.exp, expiry{deadline: ent.deadline, username: name, gen: ent.gen})

	select {
	case reg.wake <- struct{}{}:
	default:
	}
}

// rename moves the session to a new registry key, updating the session's own
// name and login flag in the same critical section so the map key never
// disagrees with the session.
func (reg *Registry) rename(sess *machine.Session, newName string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, taken := reg.users[newName]; taken {
		return serr.New(fmt.Sprintf("user %s already has a live session", newName), serr.ErrAlreadyExists)
	}

	oldName := sess.Username()
	ent, ok := reg.users[oldName]
	if !ok || ent.sess != sess {
		return serr.New("session is no longer live", serr.ErrNotFound)
	}

	delete(reg.users, oldName)
	reg.users[newName] = ent
	sess.Rename(newName)
	sess.SetLoggedIn(true)
	reg.rearm(newName, ent)
	return nil
}

func (reg *Registry) generateToken(username string) (string, error) {
	claims := &jwt.MapClaims{
		"username": username,
		"jti":      uuid.NewString(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(reg.secret)
}

// dispatch pops due expiries and evicts the sessions they still refer to.
// It sleeps until the earliest scheduled deadline and is woken early when a
// nearer one is pushed.
func (reg *Registry) dispatch() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		reg.mu.Lock()
		var wait time.Duration = time.Hour
		now := time.Now()

		for reg.exp.Len() > 0 {
			next := reg.exp[0]
			if next.deadline.After(now) {
				wait = time.Until(next.deadline)
				break
			}
			heap.Pop(&reg.exp)

			ent, ok := reg.users[next.username]
			if !ok || ent.gen != next.gen {
				continue
			}
			delete(reg.users, next.username)
			log.Printf("INFO  session for %s timed out", next.username)
		}
		reg.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-reg.done:
			return
		case <-reg.wake:
		case <-timer.C:
		}
	}
}
