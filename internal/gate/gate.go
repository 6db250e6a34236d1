// Package gate decides whether a navigation may render, must redirect, or has
// to wait for the session to settle.
package gate

import (
	"path"
	"strings"

	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/session"
)

const LoginPath = "/login"

type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Loading
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "ALLOW"
	case Redirect:
		return "REDIRECT"
	}
	return "LOADING"
}

type Decision struct {
	Outcome Outcome
	Path    string
}

func (d Decision) String() string {
	if d.Outcome == Redirect {
		return "REDIRECT(" + d.Path + ")"
	}
	return d.Outcome.String()
}

func allow() Decision { return Decision{Outcome: Allow} }
func redirect(to string) Decision { return Decision{Outcome: Redirect, Path: to} }
func loading() Decision { return Decision{Outcome: Loading} }
func home(role models.Role) Decision { return redirect(role.Home()) }

// Decide is pure: it reads the snapshot and never writes to the session.
// An empty requiredRole means the route declared none.
func Decide(s session.Session, requestedPath string, requiredRole models.Role) Decision {
	if s.Status == session.StatusLoading || s.Status == session.StatusUnresolved {
		return loading()
	}
	if s.Status != session.StatusAuthenticated || s.Token == "" || s.Identity == nil {
		return redirect(LoginPath)
	}
	role := s.Identity.Role
	if requiredRole != "" && role != requiredRole {
		return home(role)
	}
	if ns, ok := Namespace(requestedPath); ok && ns != role {
		return home(role)
	}
	return allow()
}

// Namespace reports the role owning the top segment of p, if any.
func Namespace(p string) (models.Role, bool) {
	clean := path.Clean("/" + strings.TrimSpace(p))
	seg := strings.SplitN(strings.TrimPrefix(clean, "/"), "/", 2)[0]
	r := models.Role(strings.ToLower(seg))
	if r.Valid() {
		return r, true
	}
	return "", false
}
