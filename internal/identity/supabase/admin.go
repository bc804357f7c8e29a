package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"prediction-platform/internal/identity"
	"prediction-platform/internal/logger"

	"go.uber.org/zap"
)

// AdminClient calls the service-role admin endpoints. The service key grants
// full access to the project and must only be used server side.
type AdminClient struct {
	transport  *identity.Transport
	serviceKey string
}

func NewAdminClient(projectURL, serviceKey string, timeout time.Duration) *AdminClient {
	return &AdminClient{
		transport:  identity.NewTransport(projectURL, timeout, decodeError),
		serviceKey: serviceKey,
	}
}

func (a *AdminClient) Transport() *identity.Transport {
	return a.transport
}

// DeleteUser removes the account with the given id from the hosted service.
// An account that no longer exists is not an error.
func (a *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	h := identity.BearerHeader(a.serviceKey)
	h.Set("apikey", a.serviceKey)

	err := a.transport.Do(ctx, identity.Request{
		Method: http.MethodDelete,
		Path:   authPath + "/admin/users/" + url.PathEscape(userID),
		Header: h,
	}, nil)
	if identity.IsStatus(err, http.StatusNotFound) {
		logger.Warn("Identity already absent from provider", zap.String("user_id", userID))
		return nil
	}
	return err
}
