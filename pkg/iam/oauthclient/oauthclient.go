package oauthclient

import (
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
)

// ============================================================================
// Client Descriptor
// ============================================================================

// Fixed protocol capabilities every derived client supports.
var (
	// DefaultScopes apply when a tenant has no configured scope set.
	DefaultScopes = []string{"openid", "profile", "documents:read", "chat:access"}

	// SupportedGrantTypes is the fixed grant set for all derived clients.
	SupportedGrantTypes = []string{"authorization_code", "refresh_token", "client_credentials"}

	// SupportedAuthMethods is the fixed client-authentication set.
	SupportedAuthMethods = []string{"client_secret_basic", "client_secret_post"}
)

// ClientDescriptor is a ready-to-use OAuth2 client configuration derived from
// a tenant record. It carries everything the protocol machinery needs for
// client lookup; it holds no secrets.
type ClientDescriptor struct {
	ClientID               string   `json:"client_id"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris"`
	Scopes                 []string `json:"scopes"`
	GrantTypes             []string `json:"grant_types"`
	AuthMethods            []string `json:"auth_methods"`
	RequireConsent         bool     `json:"require_consent"`
	RequirePKCE            bool     `json:"require_pkce"`

	AccessTokenTTL    time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `json:"refresh_token_ttl"`
	RefreshTokenReuse bool          `json:"refresh_token_reuse"`
	AuthCodeTTL       time.Duration `json:"auth_code_ttl"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("OAUTH_CLIENT")

var (
	CodeClientNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "OAuth2 client not found")
	CodeInvalidClientSecret = ErrRegistry.Register("INVALID_SECRET", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid client secret")
)

func ErrClientNotFound() *errx.Error {
	return ErrRegistry.New(CodeClientNotFound)
}

func ErrInvalidClientSecret() *errx.Error {
	return ErrRegistry.New(CodeInvalidClientSecret)
}
