package models

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestBaseModel_GeneratesULID(t *testing.T) {
	db := newTestDB(t)

	banner := &HeroBanner{Title: "Welcome"}
	require.NoError(t, db.Create(banner).Error)
	assert.Len(t, banner.ID, 26)

	other := &HeroBanner{Title: "Second"}
	require.NoError(t, db.Create(other).Error)
	assert.NotEqual(t, banner.ID, other.ID)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"  Launch: v2.0 is here! ", "launch-v2-0-is-here"},
		{"Crème brûlée", "cr-me-br-l-e"},
		{"!!!", "item"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Slugify(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsSlug(got))
		})
	}
}

func TestIsSlug(t *testing.T) {
	assert.True(t, IsSlug("spring-sale-2024"))
	assert.False(t, IsSlug("Spring-Sale"))
	assert.False(t, IsSlug("-lead"))
	assert.False(t, IsSlug("double--hyphen"))
	assert.False(t, IsSlug(""))
}

const seedYAML = `
admin:
  email: admin@example.com
  full_name: Site Admin
  password: changeme
company:
  name: Acme Corp
  founded_year: 1999
hero_banners:
  - title: Welcome
    order_position: 1
  - title: Inactive banner
    is_active: false
news:
  - title: We are live
    is_published: true
`

func TestApplySeed(t *testing.T) {
	db := newTestDB(t)

	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	hash := func(p string) (string, error) { return "hashed:" + p, nil }
	result, err := ApplySeed(db, seed, hash)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{"users": 1, "company": 1, "hero_banners": 2, "news": 1}, result)

	var admin User
	require.NoError(t, db.First(&admin).Error)
	assert.Equal(t, "hashed:changeme", admin.PasswordHash)
	assert.Equal(t, "admin@example.com", admin.Username)
	assert.True(t, admin.IsAdmin())

	var banners []HeroBanner
	require.NoError(t, db.Order("order_position").Find(&banners).Error)
	require.Len(t, banners, 2)
	assert.False(t, banners[0].IsActive)
	assert.True(t, banners[1].IsActive)

	var company Company
	require.NoError(t, db.First(&company).Error)
	require.NotNil(t, company.FoundedYear)
	assert.Equal(t, 1999, *company.FoundedYear)

	var news News
	require.NoError(t, db.First(&news).Error)
	assert.Equal(t, "we-are-live", news.Slug)
	assert.NotNil(t, news.PublishedAt)

	// A second run leaves populated tables alone
	again, err := ApplySeed(db, seed, hash)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestParseSeed_RequiresAdminPassword(t *testing.T) {
	_, err := ParseSeed([]byte("admin:\n  email: a@b.c\n"))
	assert.Error(t, err)
}
