// Package deposit derives the commitment hash and withdrawal credentials
// used by the validator registry's deposit flow.
package deposit

import (
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/karalabe/ssz"
)

// WithdrawalPrefixByte is the execution-address withdrawal credential version.
const WithdrawalPrefixByte = byte(0x01)

// Data is the deposit-data container as the validator registry hashes it.
// The field layout is fixed by the registry and must not change.
type Data struct {
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	Amount                uint64
	Signature             [96]byte
}

func (d *Data) SizeSSZ(*ssz.Sizer) uint32 { return 184 }

func (d *Data) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineStaticBytes(codec, &d.Pubkey)
	ssz.DefineStaticBytes(codec, &d.WithdrawalCredentials)
	ssz.DefineUint64(codec, &d.Amount)
	ssz.DefineStaticBytes(codec, &d.Signature)
}

// GenerateDepositRoot computes the canonical deposit-data root for the given
// validator credential. The registry recomputes the same root independently,
// so the encoding here is bit-exact with its reference implementation.
func GenerateDepositRoot(
	pubkey phase0.BLSPubKey,
	signature phase0.BLSSignature,
	withdrawalCredentials [32]byte,
	amount phase0.Gwei,
) phase0.Root {
	data := &Data{
		Pubkey:                pubkey,
		WithdrawalCredentials: withdrawalCredentials,
		Amount:                uint64(amount),
		Signature:             signature,
	}
	return phase0.Root(ssz.HashSequential(data))
}

// GenerateWithdrawalCredentials binds exit funds to the given execution
// address: a 0x01 version byte, 11 zero bytes and the 20-byte address.
func GenerateWithdrawalCredentials(addr common.Address) [32]byte {
	var wc [32]byte
	wc[0] = WithdrawalPrefixByte
	copy(wc[12:], addr.Bytes())
	return wc
}
