package model

import "time"

// PageView records one unique (page path, ip) visit. The composite unique
// index is the real duplicate protection; the in-process view cache in front
// of it only cuts down write attempts.
type PageView struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PagePath  string    `json:"page_path" gorm:"type:varchar(500);index;uniqueIndex:ux_page_views_path_ip;not null"`
	PageType  string    `json:"page_type,omitempty" gorm:"type:varchar(100);index"`
	EntityID  *uint     `json:"entity_id,omitempty"`
	IPAddress string    `json:"ip_address" gorm:"type:varchar(45);uniqueIndex:ux_page_views_path_ip"`
	UserAgent string    `json:"user_agent,omitempty" gorm:"type:varchar(500)"`
	Referrer  string    `json:"referrer,omitempty" gorm:"type:varchar(500)"`
	ViewedAt  time.Time `json:"viewed_at" gorm:"index;not null"`
}
