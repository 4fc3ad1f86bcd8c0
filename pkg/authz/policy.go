package authz

// Wildcard in an allow-list admits everyone through that gate
const Wildcard = "*"

// AdminRole is the role granted to members of the admin group
const AdminRole = "admin"

// Policy is the immutable admission and role-mapping configuration
type Policy struct {
	// AllowedGroups enables the group gate when non-empty
	AllowedGroups []string
	// AllowedDomains enables the email domain gate when non-empty
	AllowedDomains []string
	AdminGroup     string
	GroupRoles     map[string]string
}

// clone copies the policy so later changes by the caller have no effect
func (p Policy) clone() Policy {
	c := Policy{
		AllowedGroups:  append([]string(nil), p.AllowedGroups...),
		AllowedDomains: append([]string(nil), p.AllowedDomains...),
		AdminGroup:     p.AdminGroup,
		GroupRoles:     make(map[string]string, len(p.GroupRoles)),
	}
	for k, v := range p.GroupRoles {
		c.GroupRoles[k] = v
	}
	return c
}

// Gate names the allow-list that admitted an identity
type Gate string

const (
	GateNone   Gate = "none"
	GateGroup  Gate = "group"
	GateDomain Gate = "domain"
)

// gate is one optional allow-list
type gate struct {
	allowed map[string]struct{}
	any     bool
}

func newGate(values []string) gate {
	g := gate{allowed: make(map[string]struct{}, len(values))}
	for _, v := range values {
		if v == Wildcard {
			g.any = true
		}
		g.allowed[v] = struct{}{}
	}
	return g
}

func (g gate) enabled() bool {
	return len(g.allowed) > 0
}

func (g gate) admits(values ...string) bool {
	if g.any {
		return true
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := g.allowed[v]; ok {
			return true
		}
	}
	return false
}
