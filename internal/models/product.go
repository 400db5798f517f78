package models

import (
	"time"

	"gorm.io/datatypes"
)

// Product represents a catalog entry. Products are created once and deleted once; there is no update.
type Product struct {
	ID               string                      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name             string                      `json:"name" gorm:"type:text;not null"`
	ShortDescription string                      `json:"shortDescription" gorm:"type:text;not null"`
	FullDescription  string                      `json:"fullDescription" gorm:"type:text;not null"`
	RegularPrice     float64                     `json:"regularPrice" gorm:"not null"`
	SalePrice        *float64                    `json:"salePrice"` // Pointer for nullable field
	Tags             datatypes.JSONSlice[string] `json:"tags"`
	ImageURLs        datatypes.JSONSlice[string] `json:"imageUrls"`
	CreatedAt        time.Time                   `json:"createdAt" gorm:"index"`
}

// ProductEventType names a change to the products collection.
type ProductEventType string

const (
	ProductCreated ProductEventType = "created"
	ProductDeleted ProductEventType = "deleted"
)

// ProductEvent is broadcast after every successful mutation of the products collection.
type ProductEvent struct {
	Type       ProductEventType `json:"type"`
	ProductID  string           `json:"productId"`
	OccurredAt time.Time        `json:"occurredAt"`
}
