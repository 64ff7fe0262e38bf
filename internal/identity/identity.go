package identity

import (
	"context"
	"net/http"
)

type Role string

const (
	RoleCustomer        Role = "customer"
	RoleDeliveryPartner Role = "delivery_partner"
	RoleStoreManager    Role = "store_manager"
	RoleAdmin           Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDeliveryPartner, RoleStoreManager, RoleAdmin:
		return true
	}
	return false
}

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (i Identity) Is(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

func (i Identity) Staff() bool {
	return i.Is(RoleStoreManager, RoleAdmin)
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func FromRequest(r *http.Request) (Identity, bool) {
	id := Identity{
		ID:   r.Header.Get(HeaderUserID),
		Role: Role(r.Header.Get(HeaderUserRole)),
	}
	if id.ID == "" || !id.Role.Valid() {
		return Identity{}, false
	}
	return id, true
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromRequest(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing or invalid identity"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
