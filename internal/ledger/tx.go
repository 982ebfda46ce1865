package ledger

import "chamber/internal/models"

// TxRequest carries the transaction parameters for one marketplace
// contract call: method name, ordered arguments and the native value to
// attach. It is handed to the wallet bridge unchanged.
type TxRequest struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
	Value  int64  `json:"value"`
}

// Marketplace contract methods the service brokers.
const (
	MethodListItemFixedPrice = "listItemFixedPrice"
	MethodCreateAuction      = "createAuction"
	MethodPlaceBid           = "placeBid"
	MethodSettleAuction      = "settleAuction"
	MethodCancelAuction      = "cancelAuction"
)

// ListItemFixedPriceTx builds the fixed-price listing call.
func ListItemFixedPriceTx(key models.ListingKey, price int64) *TxRequest {
	return &TxRequest{
		Method: MethodListItemFixedPrice,
		Args:   []any{key.EventAddress, key.TokenID, price},
	}
}

// CreateAuctionTx builds the auction creation call.
func CreateAuctionTx(key models.ListingKey, startingPrice, reservePrice, durationSeconds, minBidIncrement int64) *TxRequest {
	return &TxRequest{
		Method: MethodCreateAuction,
		Args:   []any{key.EventAddress, key.TokenID, startingPrice, reservePrice, durationSeconds, minBidIncrement},
	}
}

// PlaceBidTx builds the bid call. Funds come from the bidder's escrow
// deposits, so no native value rides along.
func PlaceBidTx(key models.ListingKey, amount int64) *TxRequest {
	return &TxRequest{
		Method: MethodPlaceBid,
		Args:   []any{key.EventAddress, key.TokenID, amount},
	}
}

// SettleAuctionTx builds the settlement call.
func SettleAuctionTx(key models.ListingKey) *TxRequest {
	return &TxRequest{
		Method: MethodSettleAuction,
		Args:   []any{key.EventAddress, key.TokenID},
	}
}

// CancelAuctionTx builds the cancellation call.
func CancelAuctionTx(key models.ListingKey) *TxRequest {
	return &TxRequest{
		Method: MethodCancelAuction,
		Args:   []any{key.EventAddress, key.TokenID},
	}
}
