package stream

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"streampay/core/types"
)

const (
	EventTypeStreamCreated       = "streams.created"
	EventTypeStreamWithdrawn     = "streams.withdrawn"
	EventTypeStreamPaused        = "streams.paused"
	EventTypeStreamRestarted     = "streams.restarted"
	EventTypeStreamCanceled      = "streams.canceled"
	EventTypeDelegateUpdated     = "streams.delegate_updated"
	EventTypeStreamTransferred   = "streams.transferred"
	EventTypeTransferabilitySet  = "streams.transferability_updated"
	EventTypeSurplusRecovered    = "streams.surplus_recovered"
	EventTypeFeePolicyUpdated    = "streams.fee_policy_updated"
	EventTypeFeeCollectorUpdated = "streams.fee_collector_updated"
)

// streamEvent adapts a payload to the events.Event interface.
type streamEvent struct {
	evt *types.Event
}

func (e streamEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e streamEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload for a newly created stream.
func NewCreatedEvent(s *Stream) streamEvent {
	attrs := baseAttributes(s)
	attrs["totalAmount"] = bigString(s.TotalAmount)
	attrs["ratePerSecond"] = bigString(s.RatePerSecond)
	attrs["duration"] = strconv.FormatUint(s.Duration, 10)
	attrs["cancelable"] = strconv.FormatBool(s.Cancelable)
	attrs["transferable"] = strconv.FormatBool(s.Transferable)
	return streamEvent{evt: &types.Event{Type: EventTypeStreamCreated, Attributes: attrs}}
}

// NewWithdrawnEvent returns the payload emitted after a successful withdrawal.
func NewWithdrawnEvent(s *Stream, to [20]byte, gross, net, fee *big.Int) streamEvent {
	attrs := baseAttributes(s)
	attrs["to"] = addrHex(to)
	attrs["gross"] = bigString(gross)
	attrs["net"] = bigString(net)
	attrs["fee"] = bigString(fee)
	return streamEvent{evt: &types.Event{Type: EventTypeStreamWithdrawn, Attributes: attrs}}
}

// NewPausedEvent returns the payload emitted when accrual freezes.
func NewPausedEvent(s *Stream) streamEvent {
	attrs := baseAttributes(s)
	attrs["snapshotDebt"] = bigString(s.SnapshotDebt)
	return streamEvent{evt: &types.Event{Type: EventTypeStreamPaused, Attributes: attrs}}
}

// NewRestartedEvent returns the payload emitted when a paused stream resumes.
func NewRestartedEvent(s *Stream) streamEvent {
	attrs := baseAttributes(s)
	attrs["ratePerSecond"] = bigString(s.RatePerSecond)
	attrs["duration"] = strconv.FormatUint(s.Duration, 10)
	return streamEvent{evt: &types.Event{Type: EventTypeStreamRestarted, Attributes: attrs}}
}

// NewCanceledEvent returns the payload emitted on cancellation, including the
// amount refunded to the sender.
func NewCanceledEvent(s *Stream, refund *big.Int) streamEvent {
	attrs := baseAttributes(s)
	attrs["refund"] = bigString(refund)
	attrs["claimable"] = bigString(s.Balance)
	return streamEvent{evt: &types.Event{Type: EventTypeStreamCanceled, Attributes: attrs}}
}

// NewDelegateUpdatedEvent covers both delegation and revocation; a revoked
// delegate shows up as the zero address.
func NewDelegateUpdatedEvent(s *Stream) streamEvent {
	attrs := baseAttributes(s)
	attrs["delegate"] = addrHex(s.Delegate)
	return streamEvent{evt: &types.Event{Type: EventTypeDelegateUpdated, Attributes: attrs}}
}

// NewTransferredEvent returns the payload emitted when stream ownership moves.
func NewTransferredEvent(s *Stream, previousOwner [20]byte) streamEvent {
	attrs := baseAttributes(s)
	attrs["previousOwner"] = addrHex(previousOwner)
	return streamEvent{evt: &types.Event{Type: EventTypeStreamTransferred, Attributes: attrs}}
}

// NewTransferabilityEvent returns the payload emitted when the transferable
// flag changes.
func NewTransferabilityEvent(s *Stream) streamEvent {
	attrs := baseAttributes(s)
	attrs["transferable"] = strconv.FormatBool(s.Transferable)
	return streamEvent{evt: &types.Event{Type: EventTypeTransferabilitySet, Attributes: attrs}}
}

// NewSurplusRecoveredEvent returns the payload emitted when untracked vault
// funds are swept.
func NewSurplusRecoveredEvent(token string, to [20]byte, amount *big.Int) streamEvent {
	attrs := map[string]string{
		"token":  token,
		"to":     addrHex(to),
		"amount": bigString(amount),
	}
	return streamEvent{evt: &types.Event{Type: EventTypeSurplusRecovered, Attributes: attrs}}
}

// NewFeePolicyEvent returns the payload emitted on a fee-rate change. An
// empty token marks a default-rate update.
func NewFeePolicyEvent(token string, rate *big.Int) streamEvent {
	attrs := map[string]string{
		"rate": bigString(rate),
	}
	if token != "" {
		attrs["token"] = token
	}
	return streamEvent{evt: &types.Event{Type: EventTypeFeePolicyUpdated, Attributes: attrs}}
}

// NewFeeCollectorEvent returns the payload emitted when the fee destination
// changes.
func NewFeeCollectorEvent(collector [20]byte) streamEvent {
	attrs := map[string]string{
		"collector": addrHex(collector),
	}
	return streamEvent{evt: &types.Event{Type: EventTypeFeeCollectorUpdated, Attributes: attrs}}
}

func baseAttributes(s *Stream) map[string]string {
	if s == nil {
		return map[string]string{}
	}
	return map[string]string{
		"id":        bigString(s.ID),
		"sender":    addrHex(s.Sender),
		"recipient": addrHex(s.Recipient),
		"token":     s.Token,
		"status":    s.Status.String(),
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
