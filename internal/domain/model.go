package domain

import "time"

// BaseModel is the common base struct for all domain models.
// It replaces gorm.Model to avoid the implicit soft delete behavior of DeletedAt;
// users are soft-deleted through their Status flag instead.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PaginationRequest selects one page of a listing. Page is 1-based. Range
// checks belong to the directory so every transport reports them alike.
type PaginationRequest struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

// Offset returns the number of records skipped before the requested page.
func (r PaginationRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// PageMetadata describes a listing page.
//
// TotalPages holds the total number of records and LastPages the number of
// pages; the field names are part of the wire contract and are kept as is.
type PageMetadata struct {
	TotalPages int64 `json:"totalPages"`
	Page       int   `json:"page"`
	LastPages  int   `json:"lastPages"`
}

// Page is a single page of items plus its metadata.
type Page[T any] struct {
	Data     []T          `json:"data"`
	Metadata PageMetadata `json:"metadata"`
}
