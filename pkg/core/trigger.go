package core

// TriggerSync signals an immediate sync cycle from plugins.
// Buffered so a trigger during a running cycle is coalesced, not queued.
var TriggerSync = make(chan struct{}, 1)
