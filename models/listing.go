package models

// Listing categories
const (
	CategoryBook      = "BOOK"
	CategorySublet    = "SUBLET"
	CategoryRoommates = "ROOMMATES"
	CategoryRideshare = "RIDESHARE"
	CategoryEvent     = "EVENT"
)

// Listing is a classified posted by a seller. Only read here to resolve the
// seller of a chat.
type Listing struct {
	Model
	SellerID    uint    `json:"seller_id" gorm:"index;not null"`
	Seller      User    `json:"seller" gorm:"foreignKey:SellerID"`
	Title       string  `json:"title" gorm:"not null"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category" gorm:"index"`
	Image       string  `json:"image,omitempty"`
}
