package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/resource"
	"github.com/sitecms/sitecms/internal/tasks"
)

// ContactRequest is a public contact form submission
type ContactRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone" binding:"max=50"`
	Company string `json:"company" binding:"max=100"`
	Subject string `json:"subject" binding:"max=200"`
	Message string `json:"message" binding:"required,max=5000"`
}

// registerPublicRoutes exposes the content the website renders. Only active
// and published records are visible here.
func (s *Server) registerPublicRoutes(public *gin.RouterGroup) {
	byPosition := "order_position ASC, created_at ASC"

	public.GET("/hero-banners", listActive[models.HeroBanner](s, byPosition, false))
	public.GET("/products", listActive[models.Product](s, byPosition, true))
	public.GET("/products/:id", s.getPublicProduct)
	public.GET("/services", listActive[models.Service](s, byPosition, true))
	public.GET("/team", listActive[models.TeamMember](s, byPosition, false))
	public.GET("/news", s.listPublicNews)
	public.GET("/news/slug/:slug", s.getPublicNews)
	public.GET("/company", s.getPublicCompany)
	public.POST("/contacts", s.submitContact)
}

// listActive serves active records. ?featured=true narrows kinds that have is_featured.
func listActive[T any](s *Server, order string, featurable bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := s.db.Where("is_active = ?", true).Order(order)
		if featurable && c.Query("featured") == "true" {
			q = q.Where("is_featured = ?", true)
		}

		items := []T{}
		if err := q.Find(&items).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to list public content")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func (s *Server) getPublicProduct(c *gin.Context) {
	var product models.Product
	err := s.db.Where("id = ? AND is_active = ?", c.Param("id"), true).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// visibleNews restricts a query to published articles that have not expired
func visibleNews(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("is_published = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now)
}

func (s *Server) listPublicNews(c *gin.Context) {
	params, err := parseListParams(c, nil, "priority DESC, published_at DESC")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := visibleNews(s.db.Model(&models.News{}), time.Now().UTC())
	if category := c.Query("category"); category != "" {
		q = q.Where("category = ?", category)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count news")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var items []models.News
	if err := q.Order(params.order).Offset(params.skip).Limit(params.limit).Find(&items).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list news")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, newPage(items, total, params))
}

// getPublicNews returns one article by slug and counts the view
func (s *Server) getPublicNews(c *gin.Context) {
	var article models.News
	err := visibleNews(s.db, time.Now().UTC()).Where("slug = ?", c.Param("slug")).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load article")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := s.db.Model(&article).UpdateColumn("views_count", gorm.Expr("views_count + ?", 1)).Error; err != nil {
		s.logger.Warn().Err(err).Str("news_id", article.ID).Msg("Failed to count view")
	} else {
		article.ViewsCount++
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) getPublicCompany(c *gin.Context) {
	var company models.Company
	err := s.db.Order("created_at ASC").First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load company")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, company)
}

// @Summary Submit contact form
// @Tags public
// @Accept json
// @Produce json
// @Param request body ContactRequest true "Contact message"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/public/contacts [post]
func (s *Server) submitContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact := models.Contact{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Subject: req.Subject,
		Message: req.Message,
	}
	if err := s.db.Create(&contact).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store contact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.enqueue(tasks.NewContactReceivedTask(contact.ID))
	s.recordActivity(c, "", "create", resource.Contacts, contact.ID, "Contact form from "+contact.Email)
	s.logger.Info().Str("contact_id", contact.ID).Msg("Contact message received")

	c.JSON(http.StatusCreated, gin.H{"id": contact.ID, "message": "Thank you for your message"})
}
