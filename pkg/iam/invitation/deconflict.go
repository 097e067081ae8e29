package invitation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/identra-io/identra/pkg/errx"
)

// ExistenceChecker is the subset of the user store the deconflictor needs.
type ExistenceChecker interface {
	ExistsByEmailGlobal(ctx context.Context, email string) (bool, error)
	ExistsByUsernameGlobal(ctx context.Context, username string) (bool, error)
}

// SuffixDeconflictor is the default collision-avoidance transform. Emails get
// a plus-address tag seeded by the tenant domain ("a@x.test" in tenant
// "acme.test" becomes "a+acme@x.test"), so the stored variant still lands in
// the same mailbox. Usernames get a dot-suffixed tag. Both fall back to a
// numeric suffix, then a random one, until the result is free.
type SuffixDeconflictor struct {
	store ExistenceChecker
}

// NewSuffixDeconflictor creates the default deconflictor.
func NewSuffixDeconflictor(store ExistenceChecker) *SuffixDeconflictor {
	return &SuffixDeconflictor{store: store}
}

const maxDeconflictAttempts = 50

// DeconflictEmail returns a unique variant of the requested email.
func (d *SuffixDeconflictor) DeconflictEmail(ctx context.Context, requested, tenantDomain string) (string, error) {
	local, domainPart, ok := strings.Cut(requested, "@")
	if !ok {
		return "", errx.New("requested email has no @", errx.TypeValidation).
			WithDetail("email", requested)
	}
	// An existing plus tag is replaced, not stacked.
	if base, _, tagged := strings.Cut(local, "+"); tagged {
		local = base
	}

	tag := domainSlug(tenantDomain)
	for attempt := 0; attempt <= maxDeconflictAttempts; attempt++ {
		candidate := fmt.Sprintf("%s+%s@%s", local, suffixed(tag, attempt), domainPart)
		taken, err := d.store.ExistsByEmailGlobal(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	// Far past plausible collision counts; a random tag settles it.
	return fmt.Sprintf("%s+%s@%s", local, uuid.NewString()[:8], domainPart), nil
}

// DeconflictUsername returns a unique variant of the requested username.
func (d *SuffixDeconflictor) DeconflictUsername(ctx context.Context, requested, tenantDomain string) (string, error) {
	tag := domainSlug(tenantDomain)
	for attempt := 0; attempt <= maxDeconflictAttempts; attempt++ {
		candidate := requested + "." + suffixed(tag, attempt)
		taken, err := d.store.ExistsByUsernameGlobal(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return requested + "." + uuid.NewString()[:8], nil
}

// domainSlug reduces a tenant domain to its first label: "acme.test" → "acme".
func domainSlug(domain string) string {
	slug, _, _ := strings.Cut(domain, ".")
	if slug == "" {
		return "tenant"
	}
	return strings.ToLower(slug)
}

func suffixed(tag string, attempt int) string {
	if attempt == 0 {
		return tag
	}
	return fmt.Sprintf("%s%d", tag, attempt+1)
}
