package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"streampay/native/stream"
)

func sampleStream() *stream.Stream {
	return &stream.Stream{
		ID:            big.NewInt(1),
		Sender:        [20]byte{0x01},
		Recipient:     [20]byte{0x02},
		Token:         "PAY",
		RatePerSecond: big.NewInt(1),
		TotalAmount:   big.NewInt(1000),
		Balance:       big.NewInt(500),
		Withdrawn:     big.NewInt(500),
		Status:        stream.StreamActive,
	}
}

func TestEventObserverCountsWithdrawals(t *testing.T) {
	m := Streams()
	before := testutil.ToFloat64(m.withdrawals)

	observer := NewEventObserver(m)
	s := sampleStream()
	observer.Emit(stream.NewWithdrawnEvent(s, [20]byte{0x02}, big.NewInt(500), big.NewInt(495), big.NewInt(5)))
	observer.Emit(stream.NewWithdrawnEvent(s, [20]byte{0x02}, big.NewInt(100), big.NewInt(99), big.NewInt(1)))
	observer.Emit(stream.NewPausedEvent(s))
	observer.Emit(stream.NewCreatedEvent(s))
	observer.Emit(nil)

	require.Equal(t, before+2, testutil.ToFloat64(m.withdrawals))
}

func TestUpdateRefreshesGauges(t *testing.T) {
	m := Streams()
	m.Update(&stream.ProtocolMetrics{
		ActiveStreams: 3,
		TotalStreams:  5,
		Tokens: []stream.TokenTotals{
			{Token: "PAY", ValueLocked: big.NewInt(1500), FeesCollected: big.NewInt(6)},
		},
	})

	require.Equal(t, 3.0, testutil.ToFloat64(m.activeStreams))
	require.Equal(t, 5.0, testutil.ToFloat64(m.totalStreams))
	require.Equal(t, 1500.0, testutil.ToFloat64(m.valueLocked.WithLabelValues("PAY")))
	require.Equal(t, 6.0, testutil.ToFloat64(m.feesCollected.WithLabelValues("PAY")))
}
