package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// publicLockABI covers the two lock functions used here.
const publicLockABI = `[
  {"type":"function","name":"getHasValidKey","stateMutability":"view",
   "inputs":[{"name":"_user","type":"address"}],
   "outputs":[{"name":"isValid","type":"bool"}]},
  {"type":"function","name":"grantKeys","stateMutability":"nonpayable",
   "inputs":[{"name":"_recipients","type":"address[]"},
             {"name":"_expirationTimestamps","type":"uint256[]"},
             {"name":"_keyManagers","type":"address[]"}],
   "outputs":[{"name":"","type":"uint256[]"}]}
]`

// TransferTopic is the ERC-721 Transfer event signature.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// FirstTransferTokenID returns the token id of the first ERC-721 Transfer
// log in logs. When lockAddress is set only logs emitted by it count.
// ERC-20 transfers carry three topics and are ignored.
func FirstTransferTokenID(logs []*types.Log, lockAddress string) (*big.Int, bool) {
	var lock common.Address
	filter := common.IsHexAddress(lockAddress)
	if filter {
		lock = common.HexToAddress(lockAddress)
	}
	for _, l := range logs {
		if l == nil || len(l.Topics) != 4 || l.Topics[0] != TransferTopic {
			continue
		}
		if filter && l.Address != lock {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
