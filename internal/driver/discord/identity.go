package discord

import "sandwich/pkg/sandwich"

const (
	// DriverType is the configured driver type token for the Discord runtime.
	DriverType = "discord"
	// DriverPlatform is the neutral sandwich platform produced by the Discord runtime.
	DriverPlatform sandwich.Platform = sandwich.PlatformDiscord
)
