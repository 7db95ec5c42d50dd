package campaign

import (
	"fmt"
	"math/big"
)

// CampaignStatus enumerates the campaign lifecycle. Claimed and Canceled are
// terminal; a canceled campaign opens refunds regardless of the goal.
type CampaignStatus uint8

const (
	CampaignActive CampaignStatus = iota
	CampaignClaimed
	CampaignCanceled
)

// Valid reports whether the status value is within the supported range.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignActive, CampaignClaimed, CampaignCanceled:
		return true
	default:
		return false
	}
}

func (s CampaignStatus) String() string {
	switch s {
	case CampaignActive:
		return "active"
	case CampaignClaimed:
		return "claimed"
	case CampaignCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Campaign tracks one crowdfunding drive: donations accumulate until the
// deadline, after which the creator claims a met goal or donors reclaim an
// unmet one through their receipts.
type Campaign struct {
	ID       uint64
	Creator  [20]byte
	Token    string
	Goal     *big.Int
	Raised   *big.Int
	Deadline int64
	Status   CampaignStatus
	// ReceiptCount doubles as the per-campaign receipt id sequence.
	ReceiptCount uint64
}

// Receipt is the donation receipt token: proof of one donation, redeemable
// for a refund when the campaign fails or is canceled.
type Receipt struct {
	CampaignID uint64
	ID         uint64
	Donor      [20]byte
	Amount     *big.Int
	DonatedAt  int64
	Refunded   bool
}

// Clone returns a deep copy of the campaign.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Goal = cloneOrZero(c.Goal)
	clone.Raised = cloneOrZero(c.Raised)
	return &clone
}

// Clone returns a deep copy of the receipt.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = cloneOrZero(r.Amount)
	return &clone
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
