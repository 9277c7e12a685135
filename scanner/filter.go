package scanner

import (
	"github.com/srg/ibbq/internal/device"
)

// Filter selects advertisements. Empty fields match everything.
type Filter struct {
	// ServiceUUIDs matches if the advertisement carries at least one of them.
	ServiceUUIDs []string
	// LocalName must match exactly.
	LocalName string
	AllowList []string
	BlockList []string
}

// Match applies the allow/block, service and name filters
func (f Filter) Match(adv device.Advertisement) bool {
	addr := adv.Addr()

	for _, blocked := range f.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(f.AllowList) > 0 {
		allowed := false
		for _, a := range f.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if f.LocalName != "" && adv.LocalName() != f.LocalName {
		return false
	}

	if len(f.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range f.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if device.SameUUID(required, advUUID) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}
