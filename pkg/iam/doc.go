// Package iam is the multi-tenant identity core: tenant directory, user
// accounts, role-based authority derivation, identity resolution, derived
// OAuth2 client configuration, invitations, and the audit trail.
//
// # Layout
//
// Each domain follows the same three-layer shape:
//
//   - a domain package holding the entity, its error registry, and the
//     repository port (tenant, user, role, token)
//   - a <domain>srv package with the application service
//     (identitysrv, oauthclientsrv, invitationsrv, tenantsrv, tokensrv)
//   - a <domain>infra package with the Postgres (or Redis) implementation
//
// Cross-cutting pieces live beside them: audit (append-only trail with
// capability-injected sinks), authority (pure aggregation of role
// assignments into an authority set), janitor (recurring maintenance
// sweeps), and iamcontainer (the wiring of the whole graph).
//
// # Tenancy
//
// Every read and write is tenant-scoped unless explicitly global. Strict
// resolution requires the caller to name the tenant; loose resolution
// locates the tenant from a globally unique email or username. Deactivated
// tenants fail closed everywhere.
//
// # Auditing
//
// Services never log security events ambiently. They hold an audit.Recorder
// and record typed entries; the recorder guarantees the attempt and
// swallows sink failures so auditing can never fail the primary operation.
package iam
