package votes

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"moneymarket/crypto"
)

var (
	domainTypeHash     = ethcrypto.Keccak256([]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"))
	delegationTypeHash = ethcrypto.Keccak256([]byte("Delegation(address delegatee,uint256 nonce,uint256 expiry)"))
)

// Domain binds delegation signatures to one deployment.
type Domain struct {
	Name              string
	ChainID           uint64
	VerifyingContract crypto.Address
}

func word(v uint64) []byte {
	return common.LeftPadBytes(uint256.NewInt(v).Bytes(), 32)
}

// Separator returns the EIP-712 domain separator.
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(d.Name)),
		word(d.ChainID),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// DelegationDigest is the hash a delegator signs to delegate by signature.
func (d Domain) DelegationDigest(delegatee crypto.Address, nonce, expiry uint64) []byte {
	structHash := ethcrypto.Keccak256(
		delegationTypeHash,
		common.LeftPadBytes(delegatee.Bytes(), 32),
		word(nonce),
		word(expiry),
	)
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, d.Separator(), structHash)
}
