package authority

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LegacyAdmins is the deploy-time static allow-list of administrator
// principals. It is consulted only when the store has no row for a
// principal. Principals are matched case-insensitively, since they are
// email-like strings.
type LegacyAdmins struct {
	admins map[string]bool
}

// NewLegacyAdmins builds an allow-list from principal strings.
func NewLegacyAdmins(principals ...string) *LegacyAdmins {
	l := &LegacyAdmins{admins: make(map[string]bool, len(principals))}
	for _, p := range principals {
		p = normalizePrincipal(p)
		if p != "" {
			l.admins[p] = true
		}
	}
	return l
}

type legacyAdminsFile struct {
	Admins []string `yaml:"admins"`
}

// LoadLegacyAdmins reads the allow-list from a YAML file of the form:
//
//	admins:
//	  - admin@example.org
//	  - webmaster@example.org
func LoadLegacyAdmins(path string) (*LegacyAdmins, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy admin list: %w", err)
	}

	var file legacyAdminsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse legacy admin list: %w", err)
	}
	return NewLegacyAdmins(file.Admins...), nil
}

// Contains reports whether the principal is on the allow-list.
func (l *LegacyAdmins) Contains(principal string) bool {
	if l == nil {
		return false
	}
	return l.admins[normalizePrincipal(principal)]
}

// Principals returns the allow-list, sorted.
func (l *LegacyAdmins) Principals() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.admins))
	for p := range l.admins {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func normalizePrincipal(principal string) string {
	return strings.ToLower(strings.TrimSpace(principal))
}
