// Package module wires the marketplace service
package module

import (
	"strings"

	"warden/internal/modkit"
	"warden/internal/platform/logger"
	"warden/internal/services/audit"
	"warden/internal/services/market/domain"
	"warden/internal/services/market/service"
)

// Ports exposed by the market module
type Ports struct {
	Market domain.Port
}

// Module bundles the market wiring
type Module struct {
	ports Ports
}

// New constructs the market module.
// Regions are read from MARKET_REGIONS as comma-separated
// key:channel_id:role_id[:staff_role_id] entries.
func New(deps modkit.Deps, platform domain.Platform, rec audit.Recorder) *Module {
	cfg := deps.Cfg.Prefix("MARKET_")
	regions := parseRegions(cfg.MayCSV("REGIONS", nil))
	svc := service.New(platform, rec, regions)
	return &Module{ports: Ports{Market: svc}}
}

func parseRegions(entries []string) []domain.Region {
	out := make([]domain.Region, 0, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) < 3 {
			logger.Get().Warn().Str("entry", e).Msg("malformed market region entry; skipping")
			continue
		}
		r := domain.Region{Key: parts[0], ChannelID: parts[1], RoleID: parts[2]}
		if len(parts) > 3 {
			r.StaffRoleID = parts[3]
		}
		out = append(out, r)
	}
	return out
}

// Name identifies the module
func (m *Module) Name() string { return "market" }

// Ports returns the module's exposed ports
func (m *Module) Ports() Ports { return m.ports }
