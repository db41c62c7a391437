package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Well-known statuses. Status is an open set: any non-blank string is accepted.
const (
	StatusProduced    = "Produced"
	StatusInTransit   = "InTransit"
	StatusDelivered   = "Delivered"
	StatusTransferred = "Transferred"
	StatusRetired     = "Retired"
)

// Product is the current-state row for one product. It is only ever mutated
// through the ledger service and never deleted.
type Product struct {
	ProductID   string              `gorm:"column:product_id;type:varchar(64);primaryKey" json:"productId" validate:"omitempty,max=64"`
	Name        string              `gorm:"type:varchar(255);not null" json:"name" validate:"required,max=255"`
	Description string              `gorm:"type:text" json:"description,omitempty"`
	Category    string              `gorm:"type:varchar(100);index" json:"category,omitempty" validate:"max=100"`
	Quantity    int                 `gorm:"not null" json:"quantity" validate:"gte=0"`
	Location    string              `gorm:"type:varchar(255)" json:"location,omitempty" validate:"max=255"`
	Price       decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"price,omitempty"`
	ImageURL    string              `gorm:"type:varchar(512)" json:"image_url,omitempty" validate:"omitempty,url"`
	DateCreated string              `gorm:"type:varchar(10)" json:"date_created,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Metadata    datatypes.JSONMap   `json:"metadata,omitempty"`

	CurrentOwner string    `gorm:"type:varchar(255);not null;index" json:"current_owner"`
	Status       string    `gorm:"type:varchar(100);not null" json:"status"`
	Version      int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

func (Product) TableName() string {
	return "products"
}

// PublicView strips owner identity and internal bookkeeping for consumers.
func (p Product) PublicView() Product {
	return Product{
		ProductID:   p.ProductID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Quantity:    p.Quantity,
		Location:    p.Location,
		ImageURL:    p.ImageURL,
		DateCreated: p.DateCreated,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		LastUpdated: p.LastUpdated,
	}
}

// ProductUpdate carries the mutable fields a transition may change.
// Nil means "leave as is".
type ProductUpdate struct {
	Status       *string
	Location     *string
	CurrentOwner *string
	LastUpdated  time.Time
	Version      int64
}

// Columns renders the update as a gorm column map.
func (u ProductUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"last_updated": u.LastUpdated,
		"version":      u.Version,
	}
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	if u.Location != nil {
		cols["location"] = *u.Location
	}
	if u.CurrentOwner != nil {
		cols["current_owner"] = *u.CurrentOwner
	}
	return cols
}
