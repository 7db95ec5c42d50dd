package campaigns

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"streampay/native/campaign"
	"streampay/storage"
)

var (
	campaignRecordPrefix = []byte("campaigns/record/")
	campaignCounterKey   = []byte("campaigns/counter")
	receiptRecordPrefix  = []byte("campaigns/receipt/")
	receiptCounterPrefix = []byte("campaigns/receipts/")
)

var (
	errUnknownCampaign = errors.New("campaigns store: unknown campaign")
	errUnknownReceipt  = errors.New("campaigns store: unknown receipt")
)

type storedCampaign struct {
	ID           uint64
	Creator      [20]byte
	Token        string
	Goal         *big.Int
	Raised       *big.Int
	Deadline     uint64
	Status       uint8
	ReceiptCount uint64
}

type storedReceipt struct {
	CampaignID uint64
	ID         uint64
	Donor      [20]byte
	Amount     *big.Int
	DonatedAt  uint64
	Refunded   bool
}

// Store persists campaigns and their donation receipts. Campaign identifiers
// come from one monotonic counter; receipt identifiers are sequential within
// their campaign.
type Store struct {
	mu sync.Mutex
	db storage.Database
}

// NewStore binds a campaign store to the given backend.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// InsertCampaign mints the next campaign identifier and persists the record.
func (s *Store) InsertCampaign(c *campaign.Campaign) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, err := s.getUint(campaignCounterKey)
	if err != nil {
		return 0, err
	}
	next := counter + 1
	record := c.Clone()
	record.ID = next
	if err := s.putCampaign(record); err != nil {
		return 0, err
	}
	if err := s.putUint(campaignCounterKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// CampaignByID loads a campaign record.
func (s *Store) CampaignByID(id uint64) (*campaign.Campaign, bool) {
	raw, err := s.db.Get(campaignKey(id))
	if err != nil {
		return nil, false
	}
	var rec storedCampaign
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false
	}
	return &campaign.Campaign{
		ID:           rec.ID,
		Creator:      rec.Creator,
		Token:        rec.Token,
		Goal:         rec.Goal,
		Raised:       rec.Raised,
		Deadline:     int64(rec.Deadline),
		Status:       campaign.CampaignStatus(rec.Status),
		ReceiptCount: rec.ReceiptCount,
	}, true
}

// PutCampaign replaces an existing campaign record.
func (s *Store) PutCampaign(c *campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.db.Has(campaignKey(c.ID))
	if err != nil {
		return err
	}
	if !ok {
		return errUnknownCampaign
	}
	return s.putCampaign(c.Clone())
}

// InsertReceipt mints the campaign's next receipt identifier and persists the
// receipt.
func (s *Store) InsertReceipt(r *campaign.Receipt) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counterKey := receiptCounterKey(r.CampaignID)
	counter, err := s.getUint(counterKey)
	if err != nil {
		return 0, err
	}
	next := counter + 1
	record := r.Clone()
	record.ID = next
	if err := s.putReceipt(record); err != nil {
		return 0, err
	}
	if err := s.putUint(counterKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// ReceiptByID loads a receipt record.
func (s *Store) ReceiptByID(campaignID, receiptID uint64) (*campaign.Receipt, bool) {
	raw, err := s.db.Get(receiptKey(campaignID, receiptID))
	if err != nil {
		return nil, false
	}
	var rec storedReceipt
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false
	}
	return &campaign.Receipt{
		CampaignID: rec.CampaignID,
		ID:         rec.ID,
		Donor:      rec.Donor,
		Amount:     rec.Amount,
		DonatedAt:  int64(rec.DonatedAt),
		Refunded:   rec.Refunded,
	}, true
}

// PutReceipt replaces an existing receipt record.
func (s *Store) PutReceipt(r *campaign.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := receiptKey(r.CampaignID, r.ID)
	ok, err := s.db.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: campaign %d receipt %d", errUnknownReceipt, r.CampaignID, r.ID)
	}
	return s.putReceipt(r.Clone())
}

func (s *Store) putCampaign(c *campaign.Campaign) error {
	raw, err := rlp.EncodeToBytes(&storedCampaign{
		ID:           c.ID,
		Creator:      c.Creator,
		Token:        c.Token,
		Goal:         c.Goal,
		Raised:       c.Raised,
		Deadline:     uint64(c.Deadline),
		Status:       uint8(c.Status),
		ReceiptCount: c.ReceiptCount,
	})
	if err != nil {
		return err
	}
	return s.db.Put(campaignKey(c.ID), raw)
}

func (s *Store) putReceipt(r *campaign.Receipt) error {
	raw, err := rlp.EncodeToBytes(&storedReceipt{
		CampaignID: r.CampaignID,
		ID:         r.ID,
		Donor:      r.Donor,
		Amount:     r.Amount,
		DonatedAt:  uint64(r.DonatedAt),
		Refunded:   r.Refunded,
	})
	if err != nil {
		return err
	}
	return s.db.Put(receiptKey(r.CampaignID, r.ID), raw)
}

func (s *Store) getUint(key []byte) (uint64, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return 0, err
	}
	var value uint64
	if err := rlp.DecodeBytes(raw, &value); err != nil {
		return 0, fmt.Errorf("campaigns store: decode counter: %w", err)
	}
	return value, nil
}

func (s *Store) putUint(key []byte, value uint64) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func campaignKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(append([]byte(nil), campaignRecordPrefix...), buf[:]...)
}

func receiptCounterKey(campaignID uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], campaignID)
	return append(append([]byte(nil), receiptCounterPrefix...), buf[:]...)
}

func receiptKey(campaignID, receiptID uint64) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], campaignID)
	binary.BigEndian.PutUint64(buf[8:], receiptID)
	return append(append([]byte(nil), receiptRecordPrefix...), buf[:]...)
}
