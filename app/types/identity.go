package types

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Identity is the caller identity resolved by the gateway and forwarded on
// trusted headers. An empty identity means the request is unauthenticated.
type Identity struct {
	UserID uint64
	Role   string
}

func (i Identity) Authenticated() bool {
	return i.UserID != 0 && i.Role != ""
}

func (i Identity) Admin() bool {
	return i.Role == entity.RoleAdmin
}

// IdentityFromContext reads the forwarded identity headers. Malformed or
// missing headers yield a zero identity rather than an error; handlers
// decide whether authentication is required.
func IdentityFromContext(ctx echo.Context) Identity {
	userIDRaw := strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	role := strings.ToUpper(strings.TrimSpace(ctx.Request().Header.Get(HeaderUserRole)))

	userID, err := strconv.ParseUint(userIDRaw, 10, 64)
	if err != nil {
		return Identity{}
	}
	if role != entity.RoleUser && role != entity.RoleAdmin && role != entity.RoleSystem {
		return Identity{}
	}
	return Identity{UserID: userID, Role: role}
}
