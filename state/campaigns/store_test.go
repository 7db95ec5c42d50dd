package campaigns

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"streampay/native/campaign"
	"streampay/storage"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func sampleCampaign() *campaign.Campaign {
	return &campaign.Campaign{
		Creator:  addr(0x01),
		Token:    "PAY",
		Goal:     big.NewInt(1000),
		Raised:   big.NewInt(0),
		Deadline: 2000,
		Status:   campaign.CampaignActive,
	}
}

func TestInsertCampaignRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	id, err := store.InsertCampaign(sampleCampaign())
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	loaded, ok := store.CampaignByID(id)
	require.True(t, ok)
	require.Equal(t, addr(0x01), loaded.Creator)
	require.Equal(t, "PAY", loaded.Token)
	require.Equal(t, 0, loaded.Goal.Cmp(big.NewInt(1000)))
	require.Equal(t, 0, loaded.Raised.Sign())
	require.Equal(t, int64(2000), loaded.Deadline)
	require.Equal(t, campaign.CampaignActive, loaded.Status)

	second, err := store.InsertCampaign(sampleCampaign())
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)
}

func TestPutCampaignRequiresExisting(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	missing := sampleCampaign()
	missing.ID = 42
	require.ErrorIs(t, store.PutCampaign(missing), errUnknownCampaign)

	id, err := store.InsertCampaign(sampleCampaign())
	require.NoError(t, err)

	rec, ok := store.CampaignByID(id)
	require.True(t, ok)
	rec.Raised = big.NewInt(700)
	rec.Status = campaign.CampaignClaimed
	require.NoError(t, store.PutCampaign(rec))

	loaded, ok := store.CampaignByID(id)
	require.True(t, ok)
	require.Equal(t, 0, loaded.Raised.Cmp(big.NewInt(700)))
	require.Equal(t, campaign.CampaignClaimed, loaded.Status)
}

func TestReceiptsAreSequencedPerCampaign(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	first, err := store.InsertCampaign(sampleCampaign())
	require.NoError(t, err)
	second, err := store.InsertCampaign(sampleCampaign())
	require.NoError(t, err)

	receipt := func(campaignID uint64, amount int64) *campaign.Receipt {
		return &campaign.Receipt{
			CampaignID: campaignID,
			Donor:      addr(0x02),
			Amount:     big.NewInt(amount),
			DonatedAt:  1500,
		}
	}
	idA, err := store.InsertReceipt(receipt(first, 100))
	require.NoError(t, err)
	idB, err := store.InsertReceipt(receipt(first, 200))
	require.NoError(t, err)
	idC, err := store.InsertReceipt(receipt(second, 300))
	require.NoError(t, err)
	require.Equal(t, uint64(1), idA)
	require.Equal(t, uint64(2), idB)
	require.Equal(t, uint64(1), idC)

	loaded, ok := store.ReceiptByID(first, idB)
	require.True(t, ok)
	require.Equal(t, 0, loaded.Amount.Cmp(big.NewInt(200)))
	require.Equal(t, int64(1500), loaded.DonatedAt)
	require.False(t, loaded.Refunded)
}

func TestPutReceiptMarksRefunded(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	campaignID, err := store.InsertCampaign(sampleCampaign())
	require.NoError(t, err)
	receiptID, err := store.InsertReceipt(&campaign.Receipt{
		CampaignID: campaignID,
		Donor:      addr(0x02),
		Amount:     big.NewInt(100),
		DonatedAt:  1500,
	})
	require.NoError(t, err)

	missing := &campaign.Receipt{CampaignID: campaignID, ID: 99, Amount: big.NewInt(1)}
	require.ErrorIs(t, store.PutReceipt(missing), errUnknownReceipt)

	rec, ok := store.ReceiptByID(campaignID, receiptID)
	require.True(t, ok)
	rec.Refunded = true
	require.NoError(t, store.PutReceipt(rec))

	loaded, ok := store.ReceiptByID(campaignID, receiptID)
	require.True(t, ok)
	require.True(t, loaded.Refunded)
}

func TestUnknownLookups(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	_, ok := store.CampaignByID(7)
	require.False(t, ok)
	_, ok = store.ReceiptByID(7, 1)
	require.False(t, ok)
}
