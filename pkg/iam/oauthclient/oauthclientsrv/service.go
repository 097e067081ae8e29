package oauthclientsrv

import (
	"context"

	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/oauthclient"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/metricx"
)

// SecretVerifier compares a presented client secret against the stored hash.
type SecretVerifier interface {
	Compare(hash, plaintext string) bool
}

// Materializer derives ready-to-use OAuth2 client descriptors from tenant
// records. This is a pure read path with no side effects, callable at high
// frequency; a collaborator-owned cache sits in front via the invalidation
// hook — the Materializer itself never caches.
type Materializer struct {
	tenants  tenant.TenantRepository
	secrets  SecretVerifier
	cfg      config.OAuthClientConfig
	onUpdate func(clientID string)
}

// NewMaterializer constructs a Materializer.
func NewMaterializer(tenants tenant.TenantRepository, secrets SecretVerifier, cfg config.OAuthClientConfig) *Materializer {
	return &Materializer{
		tenants:  tenants,
		secrets:  secrets,
		cfg:      cfg,
		onUpdate: func(string) {},
	}
}

// OnInvalidate registers the collaborator cache's invalidation callback,
// fired by Invalidate after a tenant update.
func (m *Materializer) OnInvalidate(hook func(clientID string)) {
	if hook != nil {
		m.onUpdate = hook
	}
}

// Invalidate signals that a tenant's derived configuration changed. The
// Materializer holds no state of its own; this only notifies the hook.
func (m *Materializer) Invalidate(clientID string) {
	m.onUpdate(clientID)
}

// Materialize derives the client descriptor for the given derived client id.
// Missing and inactive tenants both surface as not found.
func (m *Materializer) Materialize(ctx context.Context, clientID string) (*oauthclient.ClientDescriptor, error) {
	t, err := m.tenants.FindByClientID(ctx, clientID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			metricx.ClientMaterialization("not-found")
			return nil, oauthclient.ErrClientNotFound().WithDetail("client_id", clientID)
		}
		metricx.ClientMaterialization("error")
		return nil, err
	}

	return m.derive(t)
}

// MaterializeForTenant derives the client descriptor given a tenant id.
func (m *Materializer) MaterializeForTenant(ctx context.Context, tenantID kernel.TenantID) (*oauthclient.ClientDescriptor, error) {
	t, err := m.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			metricx.ClientMaterialization("not-found")
			return nil, oauthclient.ErrClientNotFound().WithDetail("tenant_id", tenantID.String())
		}
		metricx.ClientMaterialization("error")
		return nil, err
	}

	return m.derive(t)
}

// VerifySecret checks a presented client secret against the tenant's stored
// hash. Missing, inactive, and wrong-secret cases are indistinguishable to
// the caller beyond the typed error.
func (m *Materializer) VerifySecret(ctx context.Context, clientID, secret string) error {
	t, err := m.tenants.FindByClientID(ctx, clientID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return oauthclient.ErrClientNotFound().WithDetail("client_id", clientID)
		}
		return err
	}
	if !t.Active {
		return oauthclient.ErrClientNotFound().WithDetail("client_id", clientID)
	}

	if !m.secrets.Compare(t.ClientSecretHash, secret) {
		return oauthclient.ErrInvalidClientSecret()
	}

	return nil
}

func (m *Materializer) derive(t *tenant.Tenant) (*oauthclient.ClientDescriptor, error) {
	if !t.Active {
		metricx.ClientMaterialization("not-found")
		return nil, oauthclient.ErrClientNotFound().WithDetail("client_id", t.ClientID)
	}

	scopes := make([]string, 0, len(t.Scopes))
	if len(t.Scopes) > 0 {
		scopes = append(scopes, t.Scopes...)
	} else {
		scopes = append(scopes, oauthclient.DefaultScopes...)
	}

	redirects := append([]string(nil), t.RedirectURIs...)

	metricx.ClientMaterialization("success")
	return &oauthclient.ClientDescriptor{
		ClientID:     t.ClientID,
		RedirectURIs: redirects,
		// Post-logout targets reuse the login redirect allowlist.
		PostLogoutRedirectURIs: redirects,
		Scopes:                 scopes,
		GrantTypes:             append([]string(nil), oauthclient.SupportedGrantTypes...),
		AuthMethods:            append([]string(nil), oauthclient.SupportedAuthMethods...),
		RequireConsent:         true,
		RequirePKCE:            m.cfg.RequirePKCE,
		AccessTokenTTL:         m.cfg.AccessTokenTTL,
		RefreshTokenTTL:        m.cfg.RefreshTokenTTL,
		RefreshTokenReuse:      true,
		AuthCodeTTL:            m.cfg.AuthCodeTTL,
	}, nil
}
