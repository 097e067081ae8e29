package iamcontainer

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/audit/auditinfra"
	"github.com/identra-io/identra/pkg/iam/identity/identitysrv"
	"github.com/identra-io/identra/pkg/iam/invitation"
	"github.com/identra-io/identra/pkg/iam/invitation/invitationinfra"
	"github.com/identra-io/identra/pkg/iam/invitation/invitationsrv"
	"github.com/identra-io/identra/pkg/iam/janitor"
	"github.com/identra-io/identra/pkg/iam/janitor/janitorinfra"
	"github.com/identra-io/identra/pkg/iam/oauthclient/oauthclientinfra"
	"github.com/identra-io/identra/pkg/iam/oauthclient/oauthclientsrv"
	"github.com/identra-io/identra/pkg/iam/role/roleinfra"
	"github.com/identra-io/identra/pkg/iam/tenant/tenantinfra"
	"github.com/identra-io/identra/pkg/iam/tenant/tenantsrv"
	"github.com/identra-io/identra/pkg/iam/token/tokeninfra"
	"github.com/identra-io/identra/pkg/iam/token/tokensrv"
	"github.com/identra-io/identra/pkg/iam/user/userinfra"
	"github.com/identra-io/identra/pkg/logx"
	"github.com/identra-io/identra/pkg/metricx"
	"github.com/identra-io/identra/pkg/notifx"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// No hidden globals, no ambient state — everything comes through here.
// ---------------------------------------------------------------------------

type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config

	// Mailer is a cross-context dependency injected as an interface so the
	// IAM module has zero knowledge of the concrete email transport.
	Mailer notifx.EmailSender
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// Only expose what other modules or cmd/ actually need.
// Internal repos, infra details, etc. stay private.
// ---------------------------------------------------------------------------

type Container struct {
	Resolver          *identitysrv.Resolver
	Materializer      *oauthclientsrv.CachedMaterializer
	TenantService     *tenantsrv.Service
	InvitationService *invitationsrv.Service
	TokenService      *tokensrv.Service
	AuditRecorder     *audit.Recorder

	// Janitor runs the recurring maintenance sweeps. cmd/ starts it.
	Janitor *janitor.Janitor
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: repos → audit → services.
// ---------------------------------------------------------------------------

func New(deps Deps) (*Container, error) {
	logx.Info("🔧 Initializing IAM container...")

	metricx.Init()

	// ── Repositories ─────────────────────────────────────────────────────

	tenantRepo := tenantinfra.NewPostgresTenantRepository(deps.DB)
	userRepo := userinfra.NewPostgresUserRepository(deps.DB)
	roleRepo := roleinfra.NewPostgresRoleRepository(deps.DB)
	tokenRepo := tokeninfra.NewPostgresTokenRepository(deps.DB)

	// ── Audit trail ──────────────────────────────────────────────────────

	auditSink := auditinfra.NewPostgresSink(deps.DB)
	recorder := audit.NewRecorder(auditinfra.NewFanoutSink(
		auditSink,
		auditinfra.NewLogxSink(),
	))

	// ── Infrastructure services ──────────────────────────────────────────

	hasher := userinfra.NewBcryptHasher(deps.Cfg.Auth.BcryptCost)

	mail := notifx.NewClient(deps.Mailer)
	notifier, err := invitationinfra.NewEmailNotifier(mail, deps.Cfg.Notifx)
	if err != nil {
		return nil, err
	}

	// ── Domain services ──────────────────────────────────────────────────

	resolver := identitysrv.NewResolver(
		tenantRepo,
		userRepo,
		roleRepo,
		recorder,
		deps.Cfg.Auth.LockoutThreshold,
	)

	materializer := oauthclientsrv.NewMaterializer(tenantRepo, hasher, deps.Cfg.OAuth)
	cached := oauthclientsrv.NewCachedMaterializer(
		materializer,
		oauthclientinfra.NewRedisDescriptorCache(deps.Redis, deps.Cfg.OAuth.DescriptorTTL),
	)
	logx.Info("  ✅ Redis descriptor cache enabled")

	tenantService := tenantsrv.NewService(
		tenantRepo,
		userRepo,
		roleRepo,
		hasher,
		recorder,
		materializer,
	)

	invitationService := invitationsrv.NewService(
		userRepo,
		tenantRepo,
		roleRepo,
		hasher,
		invitation.NewSuffixDeconflictor(userRepo),
		notifier,
		recorder,
		deps.Cfg.Invitation,
	)

	tokenService := tokensrv.NewService(tokenRepo)

	// ── Background maintenance ───────────────────────────────────────────

	jan := janitor.New(
		janitorinfra.NewRedisTaskQueue(deps.Redis),
		janitor.WithConcurrency(deps.Cfg.Janitor.Concurrency),
	)
	jan.Register("tokens.purge-expired", deps.Cfg.Janitor.TokenSweepInterval, janitor.TokenSweep(tokenRepo))
	jan.Register("invitations.expire", deps.Cfg.Janitor.InvitationSweepInterval, janitor.InvitationSweep(userRepo))
	jan.Register("audit.retention", deps.Cfg.Janitor.AuditSweepInterval, janitor.AuditRetentionSweep(auditSink, deps.Cfg.Janitor.AuditRetention))

	return &Container{
		Resolver:          resolver,
		Materializer:      cached,
		TenantService:     tenantService,
		InvitationService: invitationService,
		TokenService:      tokenService,
		AuditRecorder:     recorder,
		Janitor:           jan,
	}, nil
}
