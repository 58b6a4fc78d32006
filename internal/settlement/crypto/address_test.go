package crypto

import (
	"errors"
	"testing"

	"bountyhub.com/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		name    string
		addr    string
		network domain.Network
		ok      bool
	}{
		{"btc legacy", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", domain.NetworkBitcoin, true},
		{"btc bech32", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", domain.NetworkBitcoin, true},
		{"btc bad checksum", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb", domain.NetworkBitcoin, false},
		{"btc garbage", "not-an-address", domain.NetworkBitcoin, false},
		{"eth", "0x52908400098527886E0F7030069857D2E4169EE7", domain.NetworkEthereum, true},
		{"bsc lower case", "0x52908400098527886e0f7030069857d2e4169ee7", domain.NetworkBSC, true},
		{"eth short", "0x1234", domain.NetworkEthereum, false},
		{"eth on polygon without prefix", "52908400098527886E0F7030069857D2E4169EE7", domain.NetworkPolygon, false},
		{"tron", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", domain.NetworkTron, true},
		{"tron bad checksum", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u", domain.NetworkTron, false},
		{"solana", "11111111111111111111111111111111", domain.NetworkSolana, true},
		{"solana bad", "0OIl", domain.NetworkSolana, false},
		{"other network long enough", "addr_1qxyz0000000000000000000000", domain.Network("cardano"), true},
		{"other network too short", "short", domain.Network("cardano"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateAddress(tc.addr, tc.network)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrInvalidWalletAddress), "got %v", err)
		})
	}

	got, err := ValidateAddress("0x52908400098527886e0f7030069857d2e4169ee7", domain.NetworkEthereum)
	assert.NoError(t, err)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", got)
}
