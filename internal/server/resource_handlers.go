package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/resource"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// entity is implemented by pointers to content models
type entity[T any] interface {
	*T
	GetID() string
	Base() models.BaseModel
	ResetBase(models.BaseModel)
}

type defaulter interface {
	ApplyDefaults()
}

type filterKind int

const (
	filterBool filterKind = iota
	filterString
)

// resourceSpec describes how one content kind is exposed over the API
type resourceSpec[T any] struct {
	kind         *resource.Kind
	search       []string
	orderBy      []string
	defaultOrder string
	filters      map[string]filterKind
	noCreate     bool
	// beforeSave runs inside the write transaction, after binding
	beforeSave func(tx *gorm.DB, item *T, isNew bool) error
}

// Page is the list response envelope
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Pages int   `json:"pages"`
}

type listParams struct {
	skip   int
	limit  int
	search string
	order  string
}

func parseListParams(c *gin.Context, allowedOrder []string, defaultOrder string) (listParams, error) {
	p := listParams{limit: defaultPageSize, order: defaultOrder}

	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, fmt.Errorf("skip must be a non-negative integer")
		}
		p.skip = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			return p, fmt.Errorf("limit must be between 1 and %d", maxPageSize)
		}
		p.limit = n
	}

	p.search = strings.TrimSpace(c.Query("search"))

	if col := c.Query("order_by"); col != "" {
		if !slices.Contains(allowedOrder, col) {
			return p, fmt.Errorf("cannot order by %q", col)
		}
		dir := "ASC"
		if desc, _ := strconv.ParseBool(c.Query("order_desc")); desc {
			dir = "DESC"
		}
		p.order = col + " " + dir
	}
	return p, nil
}

func newPage[T any](items []T, total int64, p listParams) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(p.limit) - 1) / int64(p.limit))
	return Page[T]{
		Items: items,
		Total: total,
		Page:  p.skip/p.limit + 1,
		Size:  p.limit,
		Pages: pages,
	}
}

// applySearch adds a case-insensitive OR match over columns
func applySearch(q *gorm.DB, columns []string, term string) *gorm.DB {
	if term == "" || len(columns) == 0 {
		return q
	}
	like := "%" + strings.ToLower(term) + "%"
	clauses := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		clauses[i] = "LOWER(" + col + ") LIKE ?"
		args[i] = like
	}
	return q.Where(strings.Join(clauses, " OR "), args...)
}

func applyFilters(c *gin.Context, q *gorm.DB, filters map[string]filterKind) (*gorm.DB, error) {
	for name, kind := range filters {
		raw, ok := c.GetQuery(name)
		if !ok || raw == "" {
			continue
		}
		switch kind {
		case filterBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return q, fmt.Errorf("%s must be true or false", name)
			}
			q = q.Where(name+" = ?", v)
		case filterString:
			q = q.Where(name+" = ?", raw)
		}
	}
	return q, nil
}

// registerResource wires list, get, create, update and delete for one kind
func registerResource[T any, P entity[T]](s *Server, api *gin.RouterGroup, spec resourceSpec[T]) {
	group := api.Group(strings.TrimPrefix(spec.kind.APIPath, "/api"))
	entityType := spec.kind.Slug

	group.GET("", func(c *gin.Context) {
		params, err := parseListParams(c, spec.orderBy, spec.defaultOrder)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		q := applySearch(s.db.Model(new(T)), spec.search, params.search)
		q, err = applyFilters(c, q, spec.filters)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var total int64
		if err := q.Count(&total).Error; err != nil {
			s.logger.Error().Err(err).Str("kind", entityType).Msg("Failed to count records")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		var items []T
		if err := q.Order(params.order).Offset(params.skip).Limit(params.limit).Find(&items).Error; err != nil {
			s.logger.Error().Err(err).Str("kind", entityType).Msg("Failed to list records")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, newPage(items, total, params))
	})

	group.GET("/:id", func(c *gin.Context) {
		item, ok := loadRecord[T](s, c, entityType)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, item)
	})

	if !spec.noCreate {
		group.POST("", func(c *gin.Context) {
			item := P(new(T))
			if d, ok := any(item).(defaulter); ok {
				d.ApplyDefaults()
			}
			if err := c.ShouldBindJSON(item); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			// Identity is always server-assigned
			item.ResetBase(models.BaseModel{})

			err := s.db.Transaction(func(tx *gorm.DB) error {
				if spec.beforeSave != nil {
					if err := spec.beforeSave(tx, item, true); err != nil {
						return err
					}
				}
				return tx.Create(item).Error
			})
			if err != nil {
				s.logger.Error().Err(err).Str("kind", entityType).Msg("Failed to create record")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create " + strings.ToLower(spec.kind.Singular)})
				return
			}

			s.recordSessionActivity(c, "create", entityType, item.GetID(), "Created "+strings.ToLower(spec.kind.Singular))
			c.JSON(http.StatusCreated, item)
		})
	}

	group.PUT("/:id", func(c *gin.Context) {
		item, ok := loadRecord[T](s, c, entityType)
		if !ok {
			return
		}
		p := P(item)
		orig := p.Base()

		// Absent fields keep their stored values
		if err := c.ShouldBindJSON(p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.ResetBase(orig)

		err := s.db.Transaction(func(tx *gorm.DB) error {
			if spec.beforeSave != nil {
				if err := spec.beforeSave(tx, item, false); err != nil {
					return err
				}
			}
			return tx.Save(p).Error
		})
		if err != nil {
			s.logger.Error().Err(err).Str("kind", entityType).Msg("Failed to update record")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update " + strings.ToLower(spec.kind.Singular)})
			return
		}

		s.recordSessionActivity(c, "update", entityType, p.GetID(), "Updated "+strings.ToLower(spec.kind.Singular))
		c.JSON(http.StatusOK, item)
	})

	group.DELETE("/:id", func(c *gin.Context) {
		item, ok := loadRecord[T](s, c, entityType)
		if !ok {
			return
		}
		if err := s.db.Delete(P(item)).Error; err != nil {
			s.logger.Error().Err(err).Str("kind", entityType).Msg("Failed to delete record")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete " + strings.ToLower(spec.kind.Singular)})
			return
		}

		s.recordSessionActivity(c, "delete", entityType, c.Param("id"), "Deleted "+strings.ToLower(spec.kind.Singular))
		c.Status(http.StatusNoContent)
	})
}

// loadRecord fetches the record named by the :id parameter, writing 404 or 500 on failure
func loadRecord[T any](s *Server, c *gin.Context, entityType string) (*T, bool) {
	item := new(T)
	if err := s.db.Where("id = ?", c.Param("id")).First(item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return nil, false
		}
		s.logger.Error().Err(err).Str("kind", entityType).Msg("Failed to load record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return item, true
}

var orderableColumns = []string{"created_at", "updated_at", "order_position"}

// registerContentRoutes exposes every collection kind
func (s *Server) registerContentRoutes(api *gin.RouterGroup) {
	byPosition := "order_position ASC, created_at DESC"

	registerResource[models.HeroBanner](s, api, resourceSpec[models.HeroBanner]{
		kind:         mustKind(resource.HeroBanners),
		search:       []string{"title", "subtitle"},
		orderBy:      append([]string{"title"}, orderableColumns...),
		defaultOrder: byPosition,
		filters:      map[string]filterKind{"is_active": filterBool},
	})

	registerResource[models.Product](s, api, resourceSpec[models.Product]{
		kind:         mustKind(resource.Products),
		search:       []string{"name", "short_description", "category"},
		orderBy:      append([]string{"name", "price", "category"}, orderableColumns...),
		defaultOrder: byPosition,
		filters:      map[string]filterKind{"is_active": filterBool, "is_featured": filterBool, "category": filterString},
	})

	registerResource[models.Service](s, api, resourceSpec[models.Service]{
		kind:         mustKind(resource.Services),
		search:       []string{"name", "short_description"},
		orderBy:      append([]string{"name", "price"}, orderableColumns...),
		defaultOrder: byPosition,
		filters:      map[string]filterKind{"is_active": filterBool, "is_featured": filterBool},
	})

	registerResource[models.TeamMember](s, api, resourceSpec[models.TeamMember]{
		kind:         mustKind(resource.Team),
		search:       []string{"name", "position", "department"},
		orderBy:      append([]string{"name", "position", "department"}, orderableColumns...),
		defaultOrder: byPosition,
		filters:      map[string]filterKind{"is_active": filterBool, "department": filterString},
	})

	registerResource[models.News](s, api, resourceSpec[models.News]{
		kind:         mustKind(resource.News),
		search:       []string{"title", "excerpt", "tags"},
		orderBy:      []string{"title", "published_at", "priority", "views_count", "created_at", "updated_at"},
		defaultOrder: "created_at DESC",
		filters:      map[string]filterKind{"is_published": filterBool, "is_featured": filterBool, "category": filterString},
		beforeSave:   prepareNews,
	})

	registerResource[models.Contact](s, api, resourceSpec[models.Contact]{
		kind:         mustKind(resource.Contacts),
		search:       []string{"name", "email", "subject", "company"},
		orderBy:      []string{"name", "email", "created_at"},
		defaultOrder: "created_at DESC",
		filters:      map[string]filterKind{"is_read": filterBool, "is_replied": filterBool},
		noCreate:     true,
	})
}

func mustKind(slug string) *resource.Kind {
	k, ok := resource.Lookup(slug)
	if !ok {
		panic("unknown resource kind " + slug)
	}
	return k
}
