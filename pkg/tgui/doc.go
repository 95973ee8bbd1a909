// Package tgui provides small Telegram UI helpers: inline keyboard
// builders, "ns:action:payload" callback data, an HTML-safe message
// builder and a TTL store for per-user conversation state.
package tgui
