package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Roles a user can hold
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// GetID returns the record's primary key
func (b *BaseModel) GetID() string {
	return b.ID
}

// ResetBase restores identity fields after a request body was bound over a loaded record
func (b *BaseModel) ResetBase(orig BaseModel) {
	b.ID = orig.ID
	b.CreatedAt = orig.CreatedAt
}

// Base returns a copy of the identity fields
func (b *BaseModel) Base() BaseModel {
	return *b
}

// SystemConfig is a singleton row holding generated secrets
type SystemConfig struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // 64 hex chars, generated on first start
}

// User is a dashboard account
type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	Username     string     `json:"username" gorm:"uniqueIndex;not null"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Role         string     `json:"role" gorm:"not null"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	LastLogin    *time.Time `json:"last_login"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RevokedToken records a logged-out access token until it would have expired anyway
type RevokedToken struct {
	JTI       string    `gorm:"primaryKey;type:varchar(26)"`
	UserID    string    `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// HeroBanner is a homepage slide
type HeroBanner struct {
	BaseModel
	Title         string `json:"title" gorm:"not null" binding:"required,max=200"`
	Subtitle      string `json:"subtitle"`
	Description   string `json:"description" gorm:"type:text"`
	ImageURL      string `json:"image_url"`
	ButtonText    string `json:"button_text"`
	ButtonLink    string `json:"button_link"`
	IsActive      bool   `json:"is_active"`
	OrderPosition int    `json:"order_position"`
}

// ApplyDefaults sets values used when a create request omits them
func (h *HeroBanner) ApplyDefaults() { h.IsActive = true }

// Product is a catalogue item
type Product struct {
	BaseModel
	Name             string   `json:"name" gorm:"not null;index" binding:"required,max=200"`
	Description      string   `json:"description" gorm:"type:text"`
	ShortDescription string   `json:"short_description"`
	Price            *float64 `json:"price" binding:"omitempty,gte=0"`
	Category         string   `json:"category" gorm:"index"`
	Features         string   `json:"features" gorm:"type:text"`
	Specifications   string   `json:"specifications" gorm:"type:text"`
	ImageURL         string   `json:"image_url"`
	GalleryImages    string   `json:"gallery_images" gorm:"type:text"`
	IsFeatured       bool     `json:"is_featured"`
	IsActive         bool     `json:"is_active"`
	OrderPosition    int      `json:"order_position"`
}

func (p *Product) ApplyDefaults() { p.IsActive = true }

// Service is an offered service
type Service struct {
	BaseModel
	Name             string   `json:"name" gorm:"not null;index" binding:"required,max=200"`
	Description      string   `json:"description" gorm:"type:text"`
	ShortDescription string   `json:"short_description"`
	LongDescription  string   `json:"long_description" gorm:"type:text"`
	Price            *float64 `json:"price" binding:"omitempty,gte=0"`
	Duration         string   `json:"duration"`
	Features         string   `json:"features" gorm:"type:text"`
	Requirements     string   `json:"requirements" gorm:"type:text"`
	Icon             string   `json:"icon"`
	ImageURL         string   `json:"image_url"`
	IsFeatured       bool     `json:"is_featured"`
	IsActive         bool     `json:"is_active"`
	OrderPosition    int      `json:"order_position"`
	MetaDescription  string   `json:"meta_description"`
	Keywords         string   `json:"keywords"`
}

func (s *Service) ApplyDefaults() { s.IsActive = true }

// TeamMember is a person shown on the team page
type TeamMember struct {
	BaseModel
	Name          string `json:"name" gorm:"not null" binding:"required,max=100"`
	Position      string `json:"position" gorm:"not null" binding:"required,max=100"`
	Bio           string `json:"bio" gorm:"type:text"`
	Email         string `json:"email" binding:"omitempty,email"`
	Phone         string `json:"phone"`
	LinkedinURL   string `json:"linkedin_url"`
	TwitterURL    string `json:"twitter_url"`
	ImageURL      string `json:"image_url"`
	Department    string `json:"department" gorm:"index"`
	IsActive      bool   `json:"is_active"`
	OrderPosition int    `json:"order_position"`
}

func (m *TeamMember) ApplyDefaults() { m.IsActive = true }

// News categories
const (
	NewsCategoryGeneral      = "general"
	NewsCategoryAnnouncement = "announcement"
)

// News is an article or announcement
type News struct {
	BaseModel
	Title            string     `json:"title" gorm:"not null" binding:"required,max=200"`
	Slug             string     `json:"slug" gorm:"uniqueIndex;not null" binding:"omitempty,slug"`
	Excerpt          string     `json:"excerpt" gorm:"type:text"`
	Content          string     `json:"content" gorm:"type:text"`
	Author           string     `json:"author"`
	Category         string     `json:"category" gorm:"index"`
	Tags             string     `json:"tags"`
	FeaturedImageURL string     `json:"featured_image_url"`
	IsPublished      bool       `json:"is_published" gorm:"index"`
	IsFeatured       bool       `json:"is_featured"`
	ViewsCount       int        `json:"views_count"`
	PublishedAt      *time.Time `json:"published_at"`
	PublishAt        *time.Time `json:"publish_at"` // scheduled publication
	ExpiresAt        *time.Time `json:"expires_at"` // announcements only
	Priority         int        `json:"priority"`
}

func (n *News) ApplyDefaults() { n.Category = NewsCategoryGeneral }

// Contact is a message submitted through the public contact form
type Contact struct {
	BaseModel
	Name         string     `json:"name" gorm:"not null" binding:"required,max=100"`
	Email        string     `json:"email" gorm:"not null;index" binding:"required,email"`
	Phone        string     `json:"phone"`
	Company      string     `json:"company"`
	Subject      string     `json:"subject" binding:"max=200"`
	Message      string     `json:"message" gorm:"type:text;not null" binding:"required"`
	IsRead       bool       `json:"is_read" gorm:"index"`
	IsReplied    bool       `json:"is_replied" gorm:"index"`
	ReplyMessage string     `json:"reply_message" gorm:"type:text"`
	RepliedAt    *time.Time `json:"replied_at"`
}

// Company holds the singleton company profile
type Company struct {
	BaseModel
	Name          string `json:"name" gorm:"not null" binding:"required,max=200"`
	Description   string `json:"description" gorm:"type:text"`
	Mission       string `json:"mission" gorm:"type:text"`
	Vision        string `json:"vision" gorm:"type:text"`
	Values        string `json:"values" gorm:"type:text"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	Email         string `json:"email" binding:"omitempty,email"`
	Website       string `json:"website"`
	FoundedYear   *int   `json:"founded_year" binding:"omitempty,gte=1800,lte=2100"`
	LogoURL       string `json:"logo_url"`
	AboutImageURL string `json:"about_image_url"`
}

// ActivityLog records who changed what
type ActivityLog struct {
	BaseModel
	UserID      string `json:"user_id" gorm:"index"`
	Action      string `json:"action" gorm:"not null"`
	EntityType  string `json:"entity_type" gorm:"index"`
	EntityID    string `json:"entity_id"`
	Description string `json:"description"`
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SystemConfig{},
		&User{},
		&RevokedToken{},
		&HeroBanner{},
		&Product{},
		&Service{},
		&TeamMember{},
		&News{},
		&Contact{},
		&Company{},
		&ActivityLog{},
	)
}
