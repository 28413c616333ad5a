package report

import (
	"time"

	"sponsorportal/services/payment"
)

type Report struct {
	ID                    string    `gorm:"column:id;primaryKey"`
	Code                  string    `gorm:"column:code;uniqueIndex"`
	UserID                string    `gorm:"column:user_id;index"`
	Month                 int       `gorm:"column:month"`
	Year                  int       `gorm:"column:year"`
	TotalDonated          int64     `gorm:"column:total_donated"`
	DonationCount         int64     `gorm:"column:donation_count"`
	MissionariesSponsored int64     `gorm:"column:missionaries_sponsored"`
	FeedPostCount         int64     `gorm:"column:feed_post_count"`
	Currency              string    `gorm:"column:currency"`
	PeriodStart           time.Time `gorm:"column:period_start"`
	PeriodEnd             time.Time `gorm:"column:period_end"`
	CreatedAt             time.Time `gorm:"column:created_at;index"`
}

func (Report) TableName() string { return "reports" }

type View struct {
	ID                    string    `json:"id"`
	Code                  string    `json:"code"`
	UserID                string    `json:"userId"`
	Month                 int       `json:"month"`
	Year                  int       `json:"year"`
	TotalDonated          float64   `json:"totalDonated"`
	DonationCount         int64     `json:"donationCount"`
	MissionariesSponsored int64     `json:"missionariesSponsored"`
	FeedPostCount         int64     `json:"feedPostCount"`
	Currency              string    `json:"currency"`
	PeriodStart           time.Time `json:"periodStart"`
	PeriodEnd             time.Time `json:"periodEnd"`
	GeneratedAt           time.Time `json:"generatedAt"`
}

func (r *Report) View() View {
	return View{
		ID:                    r.ID,
		Code:                  r.Code,
		UserID:                r.UserID,
		Month:                 r.Month,
		Year:                  r.Year,
		TotalDonated:          payment.FromMinor(r.TotalDonated, r.Currency),
		DonationCount:         r.DonationCount,
		MissionariesSponsored: r.MissionariesSponsored,
		FeedPostCount:         r.FeedPostCount,
		Currency:              r.Currency,
		PeriodStart:           r.PeriodStart,
		PeriodEnd:             r.PeriodEnd,
		GeneratedAt:           r.CreatedAt,
	}
}

type GenerateRequest struct {
	UserID string `json:"userId"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
}

// GeneratePayload is the asynq payload of taskname.ReportGenerate.
type GeneratePayload struct {
	UserID string `json:"user_id"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
}
