package sponsor

import (
	"time"

	"sponsorportal/services/payment"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type tierRule struct {
	Tier  Tier
	Label string
	// Min is the lowest cumulative total in minor units that reaches the tier.
	Min int64
}

var tiers = []tierRule{
	{TierBronze, "Bronce", 0},
	{TierSilver, "Plata", 50000},
	{TierGold, "Oro", 100000},
	{TierPlatinum, "Platino", 250000},
}

// TierFor derives the tier from a cumulative total in minor units.
func TierFor(total int64) Tier {
	t := TierBronze
	for _, r := range tiers {
		if total >= r.Min {
			t = r.Tier
		}
	}
	return t
}

func nextTier(total int64) *tierRule {
	for i := range tiers {
		if tiers[i].Min > total {
			return &tiers[i]
		}
	}
	return nil
}

func labelOf(t Tier) string {
	for _, r := range tiers {
		if r.Tier == t {
			return r.Label
		}
	}
	return string(t)
}

type Stats struct {
	ID                    string     `gorm:"column:id;primaryKey"`
	UserID                string     `gorm:"column:user_id;uniqueIndex"`
	TotalDonated          int64      `gorm:"column:total_donated;not null;default:0"`
	Currency              string     `gorm:"column:currency"`
	MissionariesSponsored int64      `gorm:"column:missionaries_sponsored;not null;default:0"`
	LastDonationDate      *time.Time `gorm:"column:last_donation_date"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

func (Stats) TableName() string { return "sponsor_stats" }

func (s *Stats) Tier() Tier {
	return TierFor(s.TotalDonated)
}

// Delta is one reconciled donation applied to a sponsor's aggregate.
type Delta struct {
	Amount                int64
	Currency              string
	MissionariesSponsored int64
	LastDonationDate      time.Time
}

type View struct {
	UserID                string     `json:"userId"`
	TotalDonated          float64    `json:"totalDonated"`
	Currency              string     `json:"currency"`
	MissionariesSponsored int64      `json:"missionariesSponsored"`
	LastDonationDate      *time.Time `json:"lastDonationDate,omitempty"`
	Tier                  Tier       `json:"tier"`
	TierLabel             string     `json:"tierLabel"`
	NextTier              Tier       `json:"nextTier,omitempty"`
	AmountToNextTier      float64    `json:"amountToNextTier,omitempty"`
}

// View renders stats for a client. A nil receiver renders the default record.
func (s *Stats) View(userID, currency string) View {
	st := s
	if st == nil {
		st = &Stats{UserID: userID, Currency: currency}
	}
	if st.Currency == "" {
		st.Currency = currency
	}

	v := View{
		UserID:                st.UserID,
		TotalDonated:          payment.FromMinor(st.TotalDonated, st.Currency),
		Currency:              st.Currency,
		MissionariesSponsored: st.MissionariesSponsored,
		LastDonationDate:      st.LastDonationDate,
		Tier:                  st.Tier(),
	}
	v.TierLabel = labelOf(v.Tier)

	if next := nextTier(st.TotalDonated); next != nil {
		v.NextTier = next.Tier
		v.AmountToNextTier = payment.FromMinor(next.Min-st.TotalDonated, st.Currency)
	}
	return v
}
