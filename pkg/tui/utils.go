package tui

import (
	"math/big"

	"walletsync/pkg/utils"
)

const balanceDecimals = 4

func (m model) displayBalance(f *big.Float) string {
	if f != nil && m.privacyMode {
		return "****"
	}
	return utils.FormatBalance(f, balanceDecimals, "ETH")
}

func (m model) maskString(s string) string {
	if m.privacyMode {
		return "****"
	}
	return s
}

func (m model) maskAddress(addr string) string {
	if m.privacyMode {
		return "0x**...**"
	}
	return utils.ShortAddress(addr)
}
