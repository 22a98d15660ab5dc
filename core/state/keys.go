package state

import (
	"fmt"

	"moneymarket/crypto"
	"moneymarket/native/oracle"
)

const (
	lendingParamsKey     = "lending/params"
	lendingMarketListKey = "lending/markets"
)

func lendingMarketKey(market crypto.Address) []byte {
	return []byte("lending/market/" + market.Hex())
}

func lendingPositionKey(market, account crypto.Address) []byte {
	return []byte("lending/position/" + market.Hex() + "/" + account.Hex())
}

func lendingAssetsKey(account crypto.Address) []byte {
	return []byte("lending/assets/" + account.Hex())
}

func lendingRewardMarketKey(rt uint8, market crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/reward/%d/market/%s", rt, market.Hex()))
}

func lendingRewardAccountKey(rt uint8, market, account crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/reward/%d/account/%s/%s", rt, market.Hex(), account.Hex()))
}

func lendingRewardAccruedKey(rt uint8, account crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/reward/%d/accrued/%s", rt, account.Hex()))
}

func lendingContributorKey(rt uint8, contributor crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/reward/%d/contributor/%s", rt, contributor.Hex()))
}

func tokenBalanceKey(asset string, addr crypto.Address) []byte {
	return []byte("token/balance/" + normalizeAsset(asset) + "/" + addr.Hex())
}

func tokenSupplyKey(asset string) []byte {
	return []byte("token/supply/" + normalizeAsset(asset))
}

func votesDelegateKey(account crypto.Address) []byte {
	return []byte("votes/delegate/" + account.Hex())
}

func votesCheckpointCountKey(account crypto.Address) []byte {
	return []byte("votes/checkpoints/" + account.Hex())
}

func votesCheckpointKey(account crypto.Address, index uint64) []byte {
	return []byte(fmt.Sprintf("votes/checkpoint/%s/%d", account.Hex(), index))
}

func votesNonceKey(account crypto.Address) []byte {
	return []byte("votes/nonce/" + account.Hex())
}

func normalizeAsset(asset string) string {
	return oracle.Normalize(asset)
}
