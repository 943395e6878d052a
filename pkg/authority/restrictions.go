package authority

import (
	"net"
	"time"
)

// Satisfied reports whether the restrictions allow the request described
// by clientIP at the given instant. Nil restrictions allow everything.
//
// The IP allow-list accepts exact addresses and CIDR blocks. An empty
// allow-list places no IP constraint; a populated one with an empty or
// unparseable client IP denies, since the constraint cannot be checked.
func (r *Restrictions) Satisfied(clientIP string, now time.Time) bool {
	if r == nil {
		return true
	}
	if len(r.IPAllowlist) > 0 && !r.ipAllowed(clientIP) {
		return false
	}
	if r.Time != nil && !r.Time.allows(now) {
		return false
	}
	return true
}

func (r *Restrictions) ipAllowed(clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, entry := range r.IPAllowlist {
		if _, block, err := net.ParseCIDR(entry); err == nil {
			if block.Contains(ip) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}

func (t *TimeRestrictions) allows(now time.Time) bool {
	if len(t.AllowedDays) > 0 {
		dayOK := false
		for _, d := range t.AllowedDays {
			if now.Weekday() == d {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	// A zero-valued range means no hour constraint.
	if t.AllowedHours.Start == 0 && t.AllowedHours.End == 0 {
		return true
	}

	hour := now.Hour()
	start, end := t.AllowedHours.Start, t.AllowedHours.End
	if start <= end {
		return hour >= start && hour < end
	}
	// Window wraps midnight, e.g. 22..6.
	return hour >= start || hour < end
}
