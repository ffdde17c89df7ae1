package models

import "time"

type Network string

const (
	NetworkFacebook Network = "facebook"
	NetworkGoogle   Network = "google"
)

// Tag is an affiliate tracking id registered with the Associates program.
type Tag struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DocumentID string    `json:"documentId" gorm:"uniqueIndex;size:64"`
	Name       string    `json:"name" gorm:"not null;uniqueIndex"`
	Country    string    `json:"country,omitempty" gorm:"not null;index"`
	IsUsed     bool      `json:"isUsed" gorm:"not null;default:false;index"`
	Fbclid     string    `json:"fbclid,omitempty"`
	ProductID  string    `json:"productId,omitempty"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ClaimedAt is the last state change of a used tag; claims are the only
// writes that flip isUsed, so updatedAt doubles as the claim time. The CMS
// store also bumps it when an fbclid is attached, which is why attaching is
// limited to a short window after the claim.
func (t Tag) ClaimedAt() time.Time {
	return t.UpdatedAt
}

type TagClaim struct {
	ProductID string
	Fbclid    string
}

// Lead is one ad click that received a tracking id.
type Lead struct {
	ID              uint       `json:"id,omitempty" gorm:"primaryKey"`
	DocumentID      string     `json:"documentId,omitempty" gorm:"size:64;index"`
	EventID         string     `json:"event_id" gorm:"uniqueIndex"`
	ProductID       FlexString `json:"productId"`
	TrackingID      string     `json:"trackingId" gorm:"index"`
	TrackingDocID   string     `json:"trackingDocId,omitempty"`
	Country         string     `json:"country,omitempty"`
	Fbp             string     `json:"fbp,omitempty"`
	Fbc             string     `json:"fbc,omitempty"`
	Gclid           string     `json:"gclid,omitempty"`
	Wbraid          string     `json:"wbraid,omitempty"`
	Gbraid          string     `json:"gbraid,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	ClientIPAddress string     `json:"client_ip_address,omitempty"`
	ClientUserAgent string     `json:"client_user_agent,omitempty"`
	ClickDate       FlexString `json:"clickDate,omitempty"`
	ActionSource    string     `json:"action_source,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" gorm:"index"`
}

// Order is one row of the Associates earnings report.
type Order struct {
	Index        string   `json:"index,omitempty"`
	ASIN         string   `json:"ASIN"`
	Title        string   `json:"title"`
	Price        *float64 `json:"price"`
	OrderedCount int      `json:"orderedCount"`
	Category     string   `json:"category"`
	Merchant     string   `json:"merchant"`
	TrackingID   string   `json:"trackingId"`
	ItemURL      string   `json:"itemUrl"`
}

// Purchase is an attributed order line. IsUsed tracks Facebook reporting,
// IsGoogleUsed tracks Google Ads; both only ever go false -> true.
type Purchase struct {
	ID              uint        `json:"id,omitempty" gorm:"primaryKey"`
	DocumentID      string      `json:"documentId,omitempty" gorm:"size:64;index"`
	ProductID       FlexString  `json:"productId"`
	ClickDate       FlexString  `json:"clickDate,omitempty"`
	Fbp             string      `json:"fbp,omitempty"`
	Fbc             string      `json:"fbc,omitempty"`
	Gclid           string      `json:"gclid,omitempty"`
	Wbraid          string      `json:"wbraid,omitempty"`
	Gbraid          string      `json:"gbraid,omitempty"`
	TrackingID      string      `json:"trackingId" gorm:"index"`
	ClientUserAgent string      `json:"client_user_agent,omitempty"`
	ClientIPAddress string      `json:"client_ip_address,omitempty"`
	EventName       string      `json:"event_name"`
	EventTime       UnixSeconds `json:"event_time"`
	EventID         string      `json:"event_id"`
	OrderID         string      `json:"order_id"`
	Value           Amount      `json:"value"`
	Commission      Amount      `json:"commission"`
	EventSourceURL  string      `json:"event_source_url,omitempty"`
	ActionSource    string      `json:"action_source,omitempty"`
	IsUsed          bool        `json:"isUsed" gorm:"not null;default:false;index"`
	IsGoogleUsed    bool        `json:"isGoogleUsed" gorm:"not null;default:false;index"`
	Title           string      `json:"title,omitempty"`
	ItemURL         string      `json:"itemUrl,omitempty"`
	ASIN            string      `json:"ASIN"`
	Category        string      `json:"category,omitempty"`
	Merchant        string      `json:"merchant,omitempty"`
	OrderedCount    int         `json:"orderedCount"`
	Price           Amount      `json:"price"`
	CreatedAt       time.Time   `json:"createdAt" gorm:"index"`
}

// Key returns the CMS identifier used for updates.
func (p Purchase) Key() string {
	return p.DocumentID
}

// ReportedTo reports whether the purchase was already sent to the network.
func (p Purchase) ReportedTo(network Network) bool {
	switch network {
	case NetworkFacebook:
		return p.IsUsed
	case NetworkGoogle:
		return p.IsGoogleUsed
	}
	return false
}

// CommissionRate maps an earnings-report category to a percentage.
type CommissionRate struct {
	ID         uint     `json:"id,omitempty" gorm:"primaryKey"`
	Category   string   `json:"category" gorm:"uniqueIndex"`
	Commission *float64 `json:"commision" gorm:"column:commission"`
}

type SentItem struct {
	ID           string  `json:"id"`
	ASIN         string  `json:"asin"`
	TrackingID   string  `json:"trackingId"`
	Value        float64 `json:"value"`
	Title        string  `json:"title,omitempty"`
	Commission   float64 `json:"commission,omitempty"`
	OrderedCount int     `json:"orderedCount,omitempty"`
	Price        float64 `json:"price,omitempty"`
	Category     string  `json:"category,omitempty"`
}

// SentGroup is one aggregated conversion accepted by an ad network.
type SentGroup struct {
	Network    Network    `json:"network"`
	TrackingID string     `json:"trackingId"`
	Items      []SentItem `json:"items"`
	TotalValue float64    `json:"totalValue"`
}
