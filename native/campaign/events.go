package campaign

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"streampay/core/types"
)

const (
	EventTypeCampaignCreated  = "campaigns.created"
	EventTypeDonation         = "campaigns.donation"
	EventTypeCampaignClaimed  = "campaigns.claimed"
	EventTypeDonationRefunded = "campaigns.refunded"
	EventTypeCampaignCanceled = "campaigns.canceled"
)

type campaignEvent struct {
	evt *types.Event
}

func (e campaignEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e campaignEvent) Event() *types.Event { return e.evt }

// NewCampaignCreatedEvent returns the payload for a newly registered drive.
func NewCampaignCreatedEvent(c *Campaign) campaignEvent {
	attrs := baseAttributes(c)
	attrs["goal"] = bigString(c.Goal)
	attrs["deadline"] = strconv.FormatInt(c.Deadline, 10)
	return campaignEvent{evt: &types.Event{Type: EventTypeCampaignCreated, Attributes: attrs}}
}

// NewDonationEvent returns the payload emitted when a receipt is issued.
func NewDonationEvent(c *Campaign, r *Receipt) campaignEvent {
	attrs := baseAttributes(c)
	attrs["receipt"] = strconv.FormatUint(r.ID, 10)
	attrs["donor"] = addrHex(r.Donor)
	attrs["amount"] = bigString(r.Amount)
	attrs["raised"] = bigString(c.Raised)
	return campaignEvent{evt: &types.Event{Type: EventTypeDonation, Attributes: attrs}}
}

// NewClaimedEvent returns the payload emitted when a creator claims a met
// goal.
func NewClaimedEvent(c *Campaign) campaignEvent {
	attrs := baseAttributes(c)
	attrs["raised"] = bigString(c.Raised)
	return campaignEvent{evt: &types.Event{Type: EventTypeCampaignClaimed, Attributes: attrs}}
}

// NewRefundedEvent returns the payload emitted when a receipt is redeemed.
func NewRefundedEvent(c *Campaign, r *Receipt) campaignEvent {
	attrs := baseAttributes(c)
	attrs["receipt"] = strconv.FormatUint(r.ID, 10)
	attrs["donor"] = addrHex(r.Donor)
	attrs["amount"] = bigString(r.Amount)
	return campaignEvent{evt: &types.Event{Type: EventTypeDonationRefunded, Attributes: attrs}}
}

// NewCampaignCanceledEvent returns the payload emitted when a creator closes
// the drive early.
func NewCampaignCanceledEvent(c *Campaign) campaignEvent {
	return campaignEvent{evt: &types.Event{Type: EventTypeCampaignCanceled, Attributes: baseAttributes(c)}}
}

func baseAttributes(c *Campaign) map[string]string {
	if c == nil {
		return map[string]string{}
	}
	return map[string]string{
		"id":      strconv.FormatUint(c.ID, 10),
		"creator": addrHex(c.Creator),
		"token":   c.Token,
		"status":  c.Status.String(),
	}
}

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
