package domain

import (
	"context"
	"fmt"
	"strconv"
)

// User is the session view of an authenticated account.
type User struct {
	ID       int64  `json:"id"`
	NickName string `json:"nick_name"`
	Icon     string `json:"icon"`
}

func (u User) Fields() map[string]string {
	return map[string]string{
		"id":        strconv.FormatInt(u.ID, 10),
		"nick_name": u.NickName,
		"icon":      u.Icon,
	}
}

func UserFromFields(f map[string]string) (User, error) {
	id, err := strconv.ParseInt(f["id"], 10, 64)
	if err != nil {
		return User{}, fmt.Errorf("id: %w", err)
	}
	return User{ID: id, NickName: f["nick_name"], Icon: f["icon"]}, nil
}

type userKey struct{}

// ContextWithUser attaches the authenticated user to a request context.
func ContextWithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user set by ContextWithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}
