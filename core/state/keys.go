package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tipledger/crypto"
)

var (
	tipConfigPrefix    = []byte("tipvault/config/")
	tipVaultPrefix     = []byte("tipvault/vault/")
	tipAllowancePrefix = []byte("tipvault/allowance/")
	tipFeeVaultPrefix  = []byte("tipvault/fee-vault/")
	tipReceiptPrefix   = []byte("tipvault/receipt/")
	balancePrefix      = []byte("token/balance/")
	bootstrapKey       = []byte("tipvault/bootstrap")
)

func recordKey(prefix []byte, addr crypto.Address) []byte {
	buf := make([]byte, len(prefix)+crypto.AddressLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func balanceKey(mint, owner crypto.Address) []byte {
	buf := make([]byte, len(balancePrefix)+2*crypto.AddressLength+1)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], mint[:])
	buf[len(balancePrefix)+crypto.AddressLength] = ':'
	copy(buf[len(balancePrefix)+crypto.AddressLength+1:], owner[:])
	return ethcrypto.Keccak256(buf)
}

func TipConfigKey(addr crypto.Address) []byte    { return recordKey(tipConfigPrefix, addr) }
func TipVaultKey(addr crypto.Address) []byte     { return recordKey(tipVaultPrefix, addr) }
func TipAllowanceKey(addr crypto.Address) []byte { return recordKey(tipAllowancePrefix, addr) }
func TipFeeVaultKey(addr crypto.Address) []byte  { return recordKey(tipFeeVaultPrefix, addr) }
func TipReceiptKey(addr crypto.Address) []byte   { return recordKey(tipReceiptPrefix, addr) }

// BalanceKey returns the storage key of owner's balance in mint.
func BalanceKey(mint, owner crypto.Address) []byte { return balanceKey(mint, owner) }
