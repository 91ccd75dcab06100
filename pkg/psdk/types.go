package psdk

import "github.com/yfschool/portal/pkg/psdk/credstore"

// Resources of the portal API the SDK itself talks to. Everything else is
// passed through the gateway uninterpreted.
const (
	ResourceLogin    = "login/"
	ResourceRefresh  = "token/refresh/"
	ResourceLogout   = "logout/"
	ResourceUserInfo = "user-info/"
)

// Credential is the access/refresh token pair issued by login/.
type Credential = credstore.Credential

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Profile is the authenticated user as reported by user-info/.
type Profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ClassName string `json:"class_name,omitempty"`
}

// Status is the session's position in its lifecycle:
// Anonymous → Authenticating → Authenticated ⇄ RefreshPending → Anonymous.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusRefreshPending
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshPending:
		return "refresh_pending"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session handed to observers.
// Profile is only ever set while AccessToken is.
type Snapshot struct {
	Status      Status
	AccessToken string
	Profile     *Profile
}

// Authenticated reports whether the session holds a usable credential.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated || s.Status == StatusRefreshPending
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}
