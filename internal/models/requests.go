package models

import "time"

type LeadRequest struct {
	ProductID     FlexString `json:"productId" binding:"required"`
	Fbp           string     `json:"fbp"`
	Fbc           string     `json:"fbc"`
	Gclid         string     `json:"gclid"`
	Wbraid        string     `json:"wbraid"`
	Gbraid        string     `json:"gbraid"`
	TrackingDocID string     `json:"trackingDocId"`
	Country       string     `json:"country"`
	ClickDate     FlexString `json:"clickDate"`
	ExternalID    string     `json:"external_id"`
}

// ClientInfo is what the HTTP layer knows about the caller.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type LeadResponse struct {
	Success       bool   `json:"success"`
	TrackingID    string `json:"trackingId"`
	TrackingDocID string `json:"trackingDocId"`
	Cached        bool   `json:"cached,omitempty"`
}

type FbclidRequest struct {
	Fbclid    string     `json:"fbclid" binding:"required"`
	ProductID FlexString `json:"productId"`
	Tag       string     `json:"tag" binding:"required"`
	Country   string     `json:"country"`
}

type PurchaseStats struct {
	Since            time.Time `json:"since"`
	Purchases        int       `json:"purchases"`
	TotalValue       float64   `json:"total_value"`
	ReportedFacebook int       `json:"reported_facebook"`
	ReportedGoogle   int       `json:"reported_google"`
	LastHour         int       `json:"last_hour"`
	LastDay          int       `json:"last_day"`
}

type ProductRequest struct {
	Query   string `json:"query" binding:"required"`
	Link    string `json:"link" binding:"required"`
	Country string `json:"country"`
}

type ProductResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	TrackingID string `json:"trackingId"`
}
