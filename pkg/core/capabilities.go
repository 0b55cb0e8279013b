package core

type Capability string // Capabilities of services

const (
	CapabilityNotifier Capability = "NOTIFIER"
	CapabilitySecrets  Capability = "SECRETS"
	CapabilityTrigger  Capability = "TRIGGER"
	CapabilitySync     Capability = "SYNC"
)
