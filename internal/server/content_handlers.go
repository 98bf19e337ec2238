package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/resource"
	"github.com/sitecms/sitecms/internal/tasks"
)

// ReplyRequest is the body of a contact reply
type ReplyRequest struct {
	Message string `json:"message" binding:"required"`
}

// prepareNews fills the slug and publication time before an article is saved
func prepareNews(tx *gorm.DB, n *models.News, isNew bool) error {
	if n.Category == "" {
		n.Category = models.NewsCategoryGeneral
	}
	if n.Slug == "" {
		n.Slug = models.Slugify(n.Title)
	}

	slug, err := uniqueSlug(tx, n.Slug, n.ID)
	if err != nil {
		return err
	}
	n.Slug = slug

	if n.IsPublished && n.PublishedAt == nil {
		now := time.Now().UTC()
		n.PublishedAt = &now
	}
	return nil
}

// uniqueSlug appends -2, -3, ... until no other article uses the slug
func uniqueSlug(tx *gorm.DB, base, selfID string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		q := tx.Model(&models.News{}).Where("slug = ?", candidate)
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
}

// @Summary News statistics
// @Tags news
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /api/news/stats [get]
func (s *Server) getNewsStats(c *gin.Context) {
	now := time.Now().UTC()
	stats := map[string]int64{}

	counts := []struct {
		key   string
		query func(*gorm.DB) *gorm.DB
	}{
		{"total", func(q *gorm.DB) *gorm.DB { return q }},
		{"published", func(q *gorm.DB) *gorm.DB { return q.Where("is_published = ?", true) }},
		{"drafts", func(q *gorm.DB) *gorm.DB { return q.Where("is_published = ?", false) }},
		{"featured", func(q *gorm.DB) *gorm.DB { return q.Where("is_featured = ?", true) }},
		{"scheduled", func(q *gorm.DB) *gorm.DB {
			return q.Where("is_published = ? AND publish_at IS NOT NULL AND publish_at > ?", false, now)
		}},
	}
	for _, cnt := range counts {
		var n int64
		if err := cnt.query(s.db.Model(&models.News{})).Count(&n).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to count news")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		stats[cnt.key] = n
	}

	var views int64
	if err := s.db.Model(&models.News{}).Select("COALESCE(SUM(views_count), 0)").Scan(&views).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to sum news views")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	stats["views"] = views

	c.JSON(http.StatusOK, stats)
}

// @Summary Contact statistics
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /api/contacts/stats [get]
func (s *Server) getContactStats(c *gin.Context) {
	stats := map[string]int64{}
	conditions := map[string][]any{
		"total":     nil,
		"unread":    {"is_read = ?", false},
		"replied":   {"is_replied = ?", true},
		"unreplied": {"is_replied = ?", false},
	}
	for key, cond := range conditions {
		q := s.db.Model(&models.Contact{})
		if cond != nil {
			q = q.Where(cond[0], cond[1:]...)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to count contacts")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		stats[key] = n
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Mark contact as read
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contact ID"
// @Success 200 {object} models.Contact
// @Failure 404 {object} map[string]interface{}
// @Router /api/contacts/{id}/read [post]
func (s *Server) markContactRead(c *gin.Context) {
	contact, ok := loadRecord[models.Contact](s, c, resource.Contacts)
	if !ok {
		return
	}
	if !contact.IsRead {
		if err := s.db.Model(contact).Update("is_read", true).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to mark contact read")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		contact.IsRead = true
	}
	c.JSON(http.StatusOK, contact)
}

// @Summary Reply to contact
// @Description Stores the reply and queues its delivery
// @Tags contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contact ID"
// @Param request body ReplyRequest true "Reply"
// @Success 200 {object} models.Contact
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/contacts/{id}/reply [post]
func (s *Server) replyContact(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, ok := loadRecord[models.Contact](s, c, resource.Contacts)
	if !ok {
		return
	}

	now := time.Now().UTC()
	contact.ReplyMessage = req.Message
	contact.IsReplied = true
	contact.IsRead = true
	contact.RepliedAt = &now
	if err := s.db.Save(contact).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to save contact reply")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	sessionData, _ := GetSessionData(c)
	s.enqueue(tasks.NewContactRepliedTask(contact.ID, sessionData.UserID))
	s.recordActivity(c, sessionData.UserID, "reply", resource.Contacts, contact.ID, "Replied to "+contact.Email)

	c.JSON(http.StatusOK, contact)
}

// @Summary Get company profile
// @Tags company
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Company
// @Failure 404 {object} map[string]interface{}
// @Router /api/company [get]
func (s *Server) getCompany(c *gin.Context) {
	var company models.Company
	if err := s.db.Order("created_at ASC").First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Company profile not set"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to load company")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, company)
}

// @Summary Update company profile
// @Description Creates the profile on first save
// @Tags company
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.Company true "Company profile"
// @Success 200 {object} models.Company
// @Failure 400 {object} map[string]interface{}
// @Router /api/company [put]
func (s *Server) updateCompany(c *gin.Context) {
	var company models.Company
	err := s.db.Order("created_at ASC").First(&company).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error().Err(err).Msg("Failed to load company")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	orig := company.Base()

	if err := c.ShouldBindJSON(&company); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company.ResetBase(orig)

	if err := s.db.Save(&company).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to save company")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.recordSessionActivity(c, "update", resource.Company, company.ID, "Updated company profile")
	c.JSON(http.StatusOK, company)
}

// @Summary Dashboard statistics
// @Description Record counts per content kind
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /api/stats [get]
func (s *Server) getStats(c *gin.Context) {
	counts := []struct {
		key   string
		model any
		where []any
	}{
		{resource.HeroBanners, &models.HeroBanner{}, nil},
		{resource.Products, &models.Product{}, nil},
		{resource.Services, &models.Service{}, nil},
		{resource.Team, &models.TeamMember{}, nil},
		{resource.News, &models.News{}, nil},
		{resource.Contacts, &models.Contact{}, nil},
		{"news_published", &models.News{}, []any{"is_published = ?", true}},
		{"contacts_unread", &models.Contact{}, []any{"is_read = ?", false}},
		{"users", &models.User{}, nil},
	}

	stats := make(map[string]int64, len(counts))
	for _, cnt := range counts {
		q := s.db.Model(cnt.model)
		if cnt.where != nil {
			q = q.Where(cnt.where[0], cnt.where[1:]...)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			s.logger.Error().Err(err).Str("kind", cnt.key).Msg("Failed to count records")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		stats[cnt.key] = n
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Recent activity
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries (default 20, max 100)"
// @Param entity_type query string false "Filter by kind"
// @Success 200 {array} models.ActivityLog
// @Router /api/activity [get]
func (s *Server) listActivity(c *gin.Context) {
	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxPageSize)})
			return
		}
		limit = n
	}

	q := s.db.Order("created_at DESC").Limit(limit)
	if et := c.Query("entity_type"); et != "" {
		q = q.Where("entity_type = ?", et)
	}

	entries := []models.ActivityLog{}
	if err := q.Find(&entries).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list activity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// recordActivity appends an audit entry. Failures are logged, never returned.
func (s *Server) recordActivity(c *gin.Context, userID, action, entityType, entityID, description string) {
	entry := models.ActivityLog{
		UserID:      userID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	}
	if err := s.db.Create(&entry).Error; err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("entity_type", entityType).Msg("Failed to record activity")
	}
}

func (s *Server) recordSessionActivity(c *gin.Context, action, entityType, entityID, description string) {
	var userID string
	if sessionData, ok := GetSessionData(c); ok {
		userID = sessionData.UserID
	}
	s.recordActivity(c, userID, action, entityType, entityID, description)
}

// enqueue queues a task built by one of the tasks constructors. A queue
// outage only delays side effects, so failures are logged.
func (s *Server) enqueue(task *asynq.Task, err error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build task")
		return
	}
	info, err := s.enqueuer.Enqueue(task, asynq.Queue(tasks.QueueDefault), asynq.MaxRetry(5))
	if err != nil {
		s.logger.Warn().Err(err).Str("task_type", task.Type()).Msg("Failed to enqueue task")
		return
	}
	s.logger.Debug().Str("task_type", task.Type()).Str("task_id", info.ID).Msg("Task enqueued")
}
