package client

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client is the local business client record. EspoCrmID links it to the
// remote Account; empty means the client has never been pushed remotely.
type Client struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CompanyName string             `json:"company_name" bson:"company_name"`
	Phone       string             `json:"phone" bson:"phone"`
	Email       string             `json:"email" bson:"email"`
	Address     string             `json:"address" bson:"address"`
	City        string             `json:"city" bson:"city"`
	PostalCode  string             `json:"postal_code" bson:"postal_code"`
	Country     string             `json:"country" bson:"country"`
	VatNumber   string             `json:"vat_number" bson:"vat_number"`
	Notes       string             `json:"notes" bson:"notes"`
	EspoCrmID   string             `json:"espocrm_id,omitempty" bson:"espocrm_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}
