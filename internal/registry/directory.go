// Package registry holds the configured admin and oracle identities.
package registry

import (
	"context"
	"sort"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Directory is a static identity directory loaded from configuration.
// Identities are Ethereum addresses compared case-insensitively.
type Directory struct {
	admins  map[string]struct{}
	oracles map[string]struct{}
}

// New builds a Directory from admin and oracle address lists.
func New(admins, oracles []string) *Directory {
	d := &Directory{
		admins:  make(map[string]struct{}, len(admins)),
		oracles: make(map[string]struct{}, len(oracles)),
	}
	for _, a := range admins {
		if id := domain.NormalizeID(a); id != "" {
			d.admins[id] = struct{}{}
		}
	}
	for _, o := range oracles {
		if id := domain.NormalizeID(o); id != "" {
			d.oracles[id] = struct{}{}
		}
	}
	return d
}

func (d *Directory) IsAdmin(_ context.Context, id string) bool {
	_, ok := d.admins[domain.NormalizeID(id)]
	return ok
}

func (d *Directory) IsOracle(_ context.Context, id string) bool {
	_, ok := d.oracles[domain.NormalizeID(id)]
	return ok
}

// Admins returns the registered admin identities, sorted.
func (d *Directory) Admins() []string {
	out := make([]string, 0, len(d.admins))
	for a := range d.admins {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Principal builds the authorization context for id. Admin and oracle
// roles come from the directory only. The system role can only be granted
// by the token issuer, so it is taken from claimed.
func (d *Directory) Principal(ctx context.Context, id string, claimed []string) domain.Principal {
	p := domain.Principal{ID: domain.NormalizeID(id), Roles: []domain.Role{domain.RoleUser}}
	if d.IsAdmin(ctx, id) {
		p.Roles = append(p.Roles, domain.RoleAdmin)
	}
	if d.IsOracle(ctx, id) {
		p.Roles = append(p.Roles, domain.RoleOracle)
	}
	for _, r := range claimed {
		if domain.Role(r) == domain.RoleSystem {
			p.Roles = append(p.Roles, domain.RoleSystem)
			break
		}
	}
	return p
}
