package gate

import (
	"strings"

	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/session"
)

// Route is a navigation target and the role it was declared for.
type Route struct {
	Path string
	Role models.Role
}

// Routes lists the portal pages guarded by role.
var Routes = []Route{
	{Path: "/admin/dashboard", Role: models.Admin},
	{Path: "/admin/users", Role: models.Admin},
	{Path: "/admin/classes", Role: models.Admin},
	{Path: "/teacher/dashboard", Role: models.Teacher},
	{Path: "/teacher/assignments", Role: models.Teacher},
	{Path: "/teacher/grading", Role: models.Teacher},
	{Path: "/student/dashboard", Role: models.Student},
	{Path: "/student/assignments", Role: models.Student},
	{Path: "/student/grades", Role: models.Student},
	{Path: "/profile"},
}

// Lookup finds the declared route for p; undeclared paths carry no role.
func Lookup(p string) Route {
	p = strings.TrimRight(p, "/")
	for _, r := range Routes {
		if r.Path == p || strings.HasPrefix(p, r.Path+"/") {
			return r
		}
	}
	return Route{Path: p}
}

// Snapshotter is anything holding a current session, normally *session.Store.
type Snapshotter interface {
	Snapshot() session.Session
}

// Guard evaluates the gate for p against the store's current snapshot.
func Guard(s Snapshotter, p string) Decision {
	r := Lookup(p)
	return Decide(s.Snapshot(), p, r.Role)
}
