package driver

import (
	"sandwich/internal/driver/discord"
	"sandwich/internal/driver/telegram"
)

// NewBuiltinRegistry registers the Discord and Telegram drivers.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry(
		Descriptor{Type: discord.DriverType, Platform: discord.DriverPlatform, Build: discord.BuildRuntimeFromConfig},
		Descriptor{Type: telegram.DriverType, Platform: telegram.DriverPlatform, Build: telegram.BuildRuntimeFromConfig},
	)
}
