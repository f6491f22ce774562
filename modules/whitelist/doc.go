// Package whitelist provides the in-memory allow list behind gated commands
// and the owner-only !addwl and !rmwl commands that edit it.
package whitelist
