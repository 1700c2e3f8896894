package entities

import "fmt"

// PrincipalKind tags the variant held by a Principal
type PrincipalKind int

const (
	// PrincipalNone is the zero value: an unauthenticated caller
	PrincipalNone PrincipalKind = iota
	// PrincipalUser is an end user; ownership is enforced
	PrincipalUser
	// PrincipalService is a trusted service; ownership is bypassed and the
	// caller names the target owner explicitly
	PrincipalService
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalUser:
		return "user"
	case PrincipalService:
		return "service"
	default:
		return "none"
	}
}

// Principal is the resolved caller identity: User(id) or Service.
type Principal struct {
	kind   PrincipalKind
	userID string
}

// UserPrincipal returns the User(id) variant
func UserPrincipal(id string) Principal {
	return Principal{kind: PrincipalUser, userID: id}
}

// ServicePrincipal returns the Service variant
func ServicePrincipal() Principal {
	return Principal{kind: PrincipalService}
}

// Kind returns the variant tag
func (p Principal) Kind() PrincipalKind {
	return p.kind
}

// UserID returns the user id for the User variant
func (p Principal) UserID() (string, bool) {
	if p.kind != PrincipalUser {
		return "", false
	}
	return p.userID, true
}

// Authenticated reports whether a variant has been resolved
func (p Principal) Authenticated() bool {
	return p.kind == PrincipalUser || p.kind == PrincipalService
}

// AuthType is the label written to access logs
func (p Principal) AuthType() string {
	switch p.kind {
	case PrincipalUser:
		return "JWT"
	case PrincipalService:
		return "Service"
	default:
		return "None"
	}
}

// LogID identifies the caller in logs
func (p Principal) LogID() string {
	switch p.kind {
	case PrincipalUser:
		return p.userID
	case PrincipalService:
		return "service"
	default:
		return "anonymous"
	}
}

func (p Principal) String() string {
	return fmt.Sprintf("%s(%s)", p.kind, p.LogID())
}

// EffectiveOwner resolves which owner an owner-scoped operation targets.
// Users always act on themselves and any requested owner is ignored.
// Services must name the owner.
func (p Principal) EffectiveOwner(requested string) (string, error) {
	switch p.kind {
	case PrincipalUser:
		return p.userID, nil
	case PrincipalService:
		if requested == "" {
			return "", NewValidationError("user_id", "service callers must supply user_id")
		}
		return requested, nil
	default:
		return "", NewError(KindUnauthorized, "authentication required")
	}
}

// Authorize checks that the principal may touch a file owned by ownerID
func (p Principal) Authorize(ownerID string) error {
	switch p.kind {
	case PrincipalService:
		return nil
	case PrincipalUser:
		if ownerID == p.userID {
			return nil
		}
		return NewError(KindAccessDenied, "access denied")
	default:
		return NewError(KindUnauthorized, "authentication required")
	}
}
