package models

type Capability string

const (
	CapVotingEngine       Capability = "voting_engine"
	CapTaskManagement     Capability = "task_management"
	CapAdvancedAnalytics  Capability = "advanced_analytics"
	CapFederationMode     Capability = "federation_mode"
	CapTransparencyPortal Capability = "transparency_portal"
	CapBroadcasts         Capability = "broadcasts"
	CapDonations          Capability = "donations"
	CapPublicForms        Capability = "public_forms"
)

type Capabilities map[Capability]bool

// DefaultCapabilities is the policy for a fresh tenant. Stored maps are
// always read through it so a key missing from storage resolves here.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		CapVotingEngine:       false,
		CapTaskManagement:     false,
		CapAdvancedAnalytics:  false,
		CapFederationMode:     false,
		CapTransparencyPortal: false,
		CapBroadcasts:         true,
		CapDonations:          true,
		CapPublicForms:        true,
	}
}

// Merge returns defaults overlaid with stored values.
func (c Capabilities) Merge(stored Capabilities) Capabilities {
	out := make(Capabilities, len(c)+len(stored))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range stored {
		out[k] = v
	}
	return out
}
