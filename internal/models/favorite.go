package models

import "time"

// Favorite is a country saved by a user. The pair (UserID, CountryCode) is unique.
type Favorite struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	UserID      string    `json:"userId" gorm:"type:varchar(36);not null;uniqueIndex:idx_favorites_user_country" bson:"userId"`
	CountryCode string    `json:"countryCode" gorm:"type:varchar(16);not null;uniqueIndex:idx_favorites_user_country" bson:"countryCode"`
	CountryName string    `json:"countryName" gorm:"type:varchar(255);not null" bson:"countryName"`
	FlagURL     string    `json:"flagUrl" gorm:"type:text" bson:"flagUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index" bson:"createdAt"`
}
