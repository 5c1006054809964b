package auctionerrors

import "errors"

// Store-level errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrNoBids           = errors.New("no bids found for auction")
	ErrBidConflict      = errors.New("bid lost a concurrent update race")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Business-rule errors
var (
	ErrInvalidBid        = errors.New("invalid bid")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrAuctionNotActive  = errors.New("auction is not accepting bids")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Delivery errors
var (
	// ErrConnectionGone marks a delivery failure against a transport session
	// that no longer exists. It is the only error class that triggers
	// registry pruning.
	ErrConnectionGone = errors.New("connection no longer exists")
)
