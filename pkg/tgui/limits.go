package tgui

import "errors"

const (
	// MaxCallbackDataLen is Telegram's callback_data limit in bytes,
	// measured over the full "ns:action:payload" string.
	MaxCallbackDataLen = 64

	// MaxMessageLen is Telegram's text limit in runes.
	MaxMessageLen = 4096
)

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
