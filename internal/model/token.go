package model

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Token identifies an ERC-20 token. Decimals is used only for raw-unit
// conversion, never inside price math.
type Token struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// TokenPair is an ordered (token0, token1) pair.
type TokenPair struct {
	Token0 Token `json:"token0"`
	Token1 Token `json:"token1"`
}

// Canonical returns the pair in protocol order (token0 address < token1
// address) and whether the input order was flipped.
func (p TokenPair) Canonical() (TokenPair, bool) {
	if bytes.Compare(p.Token0.Address.Bytes(), p.Token1.Address.Bytes()) > 0 {
		return TokenPair{Token0: p.Token1, Token1: p.Token0}, true
	}
	return p, false
}
