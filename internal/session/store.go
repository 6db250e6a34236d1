// Package session owns "who is logged in" for one client tab and keeps it in
// step with the other tabs sharing the same storage.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
)

type Status int

const (
	StatusUnresolved Status = iota
	StatusLoading
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	}
	return "unresolved"
}

const (
	NoticeExpired      = "session expired"
	NoticeAccessDenied = "access denied"
	NoticeSignedOut    = "signed out in another tab"
)

var (
	ErrClosed     = errors.New("session store closed")
	ErrSuperseded = errors.New("identity result superseded")
	ErrNoToken    = errors.New("no session token")
)

// Session is an immutable snapshot of the store.
type Session struct {
	Token    string
	RoleHint models.Role
	Identity *models.Identity
	Status   Status
	Notice   string
	Err      error
}

func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil && s.Token != ""
}

type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

type Store struct {
	storage  *Storage
	resolver IdentityResolver
	log      *zap.Logger

	mu        sync.Mutex
	sess      Session
	gen       uint64
	closed    bool
	listeners []func(Session)

	baseCtx     context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewStore(storage *Storage, resolver IdentityResolver, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		storage:  storage,
		resolver: resolver,
		log:      log.With(zap.String("tab", storage.Origin())),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.unsubscribe = storage.Subscribe(s.handleStorageEvent)
	return s
}

// OnChange registers fn to receive every new snapshot.
func (s *Store) OnChange(fn func(Session)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	out := s.sess
	if s.sess.Identity != nil {
		id := *s.sess.Identity
		out.Identity = &id
	}
	return out
}

// Mount restores the persisted session; a stored token without a known
// identity is resolved eagerly.
func (s *Store) Mount(ctx context.Context) error {
	token, err := s.storage.Get(TokenKey)
	if err != nil {
		return err
	}
	role, _ := s.storage.Get(RoleKey)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.sess.Identity != nil && s.sess.Token == token {
		s.mu.Unlock()
		return nil
	}
	if token == "" {
		s.gen++
		s.sess = Session{Status: StatusAnonymous}
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(snap)
		return nil
	}
	gen := s.begin(token, models.Role(role))
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	return s.resolve(ctx, gen, token)
}

// Login stores token and resolves the identity behind it.
func (s *Store) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen := s.begin(token, "")
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	if err := s.storage.Set(TokenKey, token); err != nil {
		s.log.Warn("persist token", zap.Error(err))
	}
	return s.resolve(ctx, gen, token)
}

// Retry re-resolves the kept token after a transient failure.
func (s *Store) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	token := s.sess.Token
	if token == "" {
		s.mu.Unlock()
		return ErrNoToken
	}
	gen := s.begin(token, s.sess.RoleHint)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return s.resolve(ctx, gen, token)
}

// Logout clears the token, the role hint and every user-scoped key.
func (s *Store) Logout() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	s.sess = Session{Status: StatusAnonymous}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return s.purge()
}

// Close tears the store down; results still in flight are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
}

// begin starts a new resolution generation. Caller holds mu.
func (s *Store) begin(token string, hint models.Role) uint64 {
	s.gen++
	s.sess = Session{Token: token, RoleHint: hint, Status: StatusLoading}
	return s.gen
}

func (s *Store) resolve(ctx context.Context, gen uint64, token string) error {
	id, err := s.resolver.Resolve(ctx, token)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("dropping stale identity result", zap.Uint64("gen", gen))
		return ErrSuperseded
	}
	if err == nil {
		s.sess.Identity = &id
		s.sess.RoleHint = id.Role
		s.sess.Status = StatusAuthenticated
		s.sess.Notice = ""
		s.sess.Err = nil
		snap := s.snapshotLocked()
		s.mu.Unlock()

		if err := s.storage.Set(RoleKey, string(id.Role)); err != nil {
			s.log.Warn("persist role hint", zap.Error(err))
		}
		s.log.Info("session authenticated", zap.Int64("user_id", id.ID), zap.String("role", string(id.Role)))
		s.emit(snap)
		return nil
	}

	purge := false
	switch apperr.KindOf(err) {
	case apperr.KindAuthExpired:
		s.gen++
		s.sess = Session{Status: StatusAnonymous, Notice: NoticeExpired, Err: err}
		purge = true
	case apperr.KindAuthForbidden:
		s.sess.Identity = nil
		s.sess.Status = StatusAnonymous
		s.sess.Notice = NoticeAccessDenied
		s.sess.Err = err
	default:
		s.sess.Identity = nil
		s.sess.Status = StatusAnonymous
		s.sess.Notice = apperr.Message(err)
		s.sess.Err = err
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Warn("identity resolution failed", zap.String("kind", apperr.KindOf(err).String()), zap.Error(err))
	if purge {
		if perr := s.purge(); perr != nil {
			s.log.Warn("purge session", zap.Error(perr))
		}
	}
	s.emit(snap)
	return err
}

func (s *Store) purge() error {
	if err := s.storage.Remove(TokenKey); err != nil {
		return err
	}
	if err := s.storage.Remove(RoleKey); err != nil {
		return err
	}
	return s.storage.RemovePrefix(UserScopePrefix)
}

// handleStorageEvent reacts to token changes written by other tabs.
func (s *Store) handleStorageEvent(ev StorageEvent) {
	if ev.Key != TokenKey {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if ev.Removed() {
		if s.sess.Token == "" && s.sess.Status == StatusAnonymous {
			s.mu.Unlock()
			return
		}
		s.gen++
		s.sess = Session{Status: StatusAnonymous, Notice: NoticeSignedOut}
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Info("token removed by another tab")
		s.emit(snap)
		return
	}
	if ev.NewValue == s.sess.Token {
		s.mu.Unlock()
		return
	}
	token := ev.NewValue
	gen := s.begin(token, "")
	snap := s.snapshotLocked()
	s.wg.Add(1)
	s.mu.Unlock()
	s.emit(snap)

	go func() {
		defer s.wg.Done()
		_ = s.resolve(s.baseCtx, gen, token)
	}()
}

func (s *Store) emit(snap Session) {
	s.mu.Lock()
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(snap)
	}
}
