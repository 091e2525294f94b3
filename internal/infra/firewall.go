package infra

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// maxDuplicateRules bounds the delete loop when a rule was inserted twice
// by hand.
const maxDuplicateRules = 16

// XTablesBackend manages owner-uid DROP rules through iptables or ip6tables.
type XTablesBackend struct {
	name   string
	path   string
	runner CommandRunner
}

// NewIPTablesBackend creates the IPv4 backend.
func NewIPTablesBackend(runner CommandRunner) *XTablesBackend {
	return newXTablesBackend("iptables", runner)
}

// NewIP6TablesBackend creates the IPv6 backend.
func NewIP6TablesBackend(runner CommandRunner) *XTablesBackend {
	return newXTablesBackend("ip6tables", runner)
}

func newXTablesBackend(name string, runner CommandRunner) *XTablesBackend {
	// Find binary on PATH, then the common sbin locations
	path, err := runner.LookPath(name)
	if err != nil {
		for _, candidate := range []string{"/usr/sbin/" + name, "/sbin/" + name} {
			if p, err := runner.LookPath(candidate); err == nil {
				path = p
				break
			}
		}
	}
	return &XTablesBackend{name: name, path: path, runner: runner}
}

func (b *XTablesBackend) Name() string {
	return b.name
}

func (b *XTablesBackend) IsAvailable() bool {
	return b.path != ""
}

// ruleSpec is the OUTPUT rule dropping every packet sent by uid.
func ruleSpec(uid uint32) []string {
	return []string{"OUTPUT", "-m", "owner", "--uid-owner", strconv.FormatUint(uint64(uid), 10), "-j", "DROP"}
}

func (b *XTablesBackend) command(ctx context.Context, action string, uid uint32) error {
	// -w waits for the xtables lock instead of failing
	args := append([]string{"-w", action}, ruleSpec(uid)...)
	return b.runner.Run(ctx, b.path, args...)
}

// HasDropRule checks the rule with -C; exit status 1 means absent.
func (b *XTablesBackend) HasDropRule(ctx context.Context, uid uint32) (bool, error) {
	err := b.command(ctx, "-C", uid)
	if err == nil {
		return true, nil
	}
	if ExitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

func (b *XTablesBackend) InsertDropRule(ctx context.Context, uid uint32) error {
	present, err := b.HasDropRule(ctx, uid)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	return b.command(ctx, "-I", uid)
}

func (b *XTablesBackend) DeleteDropRule(ctx context.Context, uid uint32) error {
	for i := 0; i < maxDuplicateRules; i++ {
		present, err := b.HasDropRule(ctx, uid)
		if err != nil {
			return err
		}
		if !present {
			return nil
		}
		if err := b.command(ctx, "-D", uid); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: drop rule for uid %d still present after %d deletions", b.name, uid, maxDuplicateRules)
}

// FirewallManager applies drop rules through every available backend.
type FirewallManager struct {
	backends []domain.FirewallBackend
	logger   *zap.Logger
}

// NewFirewallManager creates a manager with all available backends for this system.
func NewFirewallManager(runner CommandRunner, logger *zap.Logger) *FirewallManager {
	var backends []domain.FirewallBackend
	for _, b := range []domain.FirewallBackend{NewIPTablesBackend(runner), NewIP6TablesBackend(runner)} {
		if b.IsAvailable() {
			backends = append(backends, b)
		}
	}
	return NewFirewallManagerWithBackends(backends, logger)
}

// NewFirewallManagerWithBackends creates a manager over the given backends (for testing).
func NewFirewallManagerWithBackends(backends []domain.FirewallBackend, logger *zap.Logger) *FirewallManager {
	return &FirewallManager{backends: backends, logger: logger}
}

// GetBackends returns all available backends
func (m *FirewallManager) GetBackends() []domain.FirewallBackend {
	return m.backends
}

// BlockTraffic installs the drop rule for uid in every backend. All backends
// are attempted; the first failure is returned.
func (m *FirewallManager) BlockTraffic(ctx context.Context, uid uint32) error {
	return m.each(uid, "block", func(b domain.FirewallBackend) error {
		return b.InsertDropRule(ctx, uid)
	})
}

// AllowTraffic removes the drop rule for uid from every backend.
func (m *FirewallManager) AllowTraffic(ctx context.Context, uid uint32) error {
	return m.each(uid, "allow", func(b domain.FirewallBackend) error {
		return b.DeleteDropRule(ctx, uid)
	})
}

func (m *FirewallManager) each(uid uint32, action string, fn func(domain.FirewallBackend) error) error {
	if len(m.backends) == 0 {
		return fmt.Errorf("no firewall backend available")
	}
	var first error
	for _, b := range m.backends {
		if err := fn(b); err != nil {
			m.logger.Warn("firewall update failed",
				zap.String("backend", b.Name()),
				zap.String("action", action),
				zap.Uint32("uid", uid),
				zap.Error(err))
			if first == nil {
				first = fmt.Errorf("%s: %w", b.Name(), err)
			}
		}
	}
	return first
}

// Ensure implementations satisfy interfaces
var _ domain.FirewallBackend = (*XTablesBackend)(nil)
