package model

import "time"

// Provider is a medical provider directory record. The five reconciled
// fields live alongside identity fields and verification timestamps.
type Provider struct {
	ID             int64      `json:"id"`
	ExternalID     string     `json:"external_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone,omitempty"`
	Address        string     `json:"address,omitempty"`
	Specialty      string     `json:"specialty,omitempty"`
	LicenseNo      string     `json:"license_no,omitempty"`
	LicenseExpiry  string     `json:"license_expiry,omitempty"`
	Affiliations   string     `json:"affiliations,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	LastChangedAt  *time.Time `json:"last_changed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DocTypeLicense is the document type attached to scanned license images.
const DocTypeLicense = "license"

// Document is a scanned artifact attached to a provider.
type Document struct {
	ID            int64    `json:"id"`
	ProviderID    int64    `json:"provider_id"`
	DocType       string   `json:"doc_type"`
	Path          string   `json:"path"`
	OCRText       string   `json:"ocr_text,omitempty"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`
}

// ProviderSummary is a provider joined with its latest score and drift rows.
type ProviderSummary struct {
	ID          int64    `json:"id"`
	ExternalID  string   `json:"external_id"`
	Name        string   `json:"name"`
	Specialty   string   `json:"specialty,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Address     string   `json:"address,omitempty"`
	PCS         *float64 `json:"pcs"`
	Band        string   `json:"pcs_band,omitempty"`
	DriftScore  *float64 `json:"drift_score"`
	DriftBucket string   `json:"drift_bucket,omitempty"`
	NextCheck   *int     `json:"recommended_next_check_days,omitempty"`
}
