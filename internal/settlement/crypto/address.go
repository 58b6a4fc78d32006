package crypto

import (
	"regexp"
	"strings"

	"bountyhub.com/internal/settlement/domain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

var (
	btcLegacyRe = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	btcBech32Re = regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`)
	evmRe       = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	tronRe      = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
)

// tron 地址 base58check 的版本字节
const tronVersion = 0x41

// ValidateAddress 按网络校验地址格式，返回规范化后的地址
// 先过正则，再做各链自己的校验和检查
func ValidateAddress(address string, network domain.Network) (string, error) {
	addr := strings.TrimSpace(address)
	bad := func() (string, error) {
		return "", domain.ErrInvalidWalletAddress.WithMsg("invalid %s address", network)
	}

	switch {
	case network == domain.NetworkBitcoin:
		if !btcLegacyRe.MatchString(addr) && !btcBech32Re.MatchString(addr) {
			return bad()
		}
		if _, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams); err != nil {
			return bad()
		}
		return addr, nil

	case network.IsEVM():
		if !evmRe.MatchString(addr) {
			return bad()
		}
		// 统一成 EIP-55 大小写
		return common.HexToAddress(addr).Hex(), nil

	case network == domain.NetworkTron:
		if !tronRe.MatchString(addr) {
			return bad()
		}
		if _, ver, err := base58.CheckDecode(addr); err != nil || ver != tronVersion {
			return bad()
		}
		return addr, nil

	case network == domain.NetworkSolana:
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return bad()
		}
		return addr, nil

	default:
		if network == "" || len(addr) < 26 || len(addr) > 128 {
			return bad()
		}
		return addr, nil
	}
}
