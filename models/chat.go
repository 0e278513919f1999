package models

// Chat is the conversation between the buyer and the seller of one listing.
// There is at most one chat per (listing, buyer).
type Chat struct {
	Model
	ListingID uint    `json:"listing" gorm:"not null;uniqueIndex:idx_chat_listing_buyer"`
	Listing   Listing `json:"listing_details" gorm:"foreignKey:ListingID"`
	BuyerID   uint    `json:"buyer" gorm:"not null;index;uniqueIndex:idx_chat_listing_buyer"`
	Buyer     User    `json:"buyer_details" gorm:"foreignKey:BuyerID"`
	SellerID  uint    `json:"seller" gorm:"not null;index"`
	Seller    User    `json:"seller_details" gorm:"foreignKey:SellerID"`
}

// HasParticipant reports whether userID is the buyer or the seller
func (c *Chat) HasParticipant(userID uint) bool {
	return userID == c.BuyerID || userID == c.SellerID
}

// Counterpart returns the id of the other participant
func (c *Chat) Counterpart(userID uint) uint {
	if userID == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}

type CreateChatRequest struct {
	ListingID uint `json:"listing" binding:"required"`
}
