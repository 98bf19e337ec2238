package resource

// Content kind slugs
const (
	HeroBanners = "hero-banners"
	Products    = "products"
	Services    = "services"
	Team        = "team"
	News        = "news"
	Contacts    = "contacts"
	Company     = "company"
)

var (
	fieldActive   = Field{Name: "is_active", Label: "Active", Type: TypeBool, List: true}
	fieldFeatured = Field{Name: "is_featured", Label: "Featured", Type: TypeBool, List: true}
	fieldOrder    = Field{Name: "order_position", Label: "Order", Type: TypeInt, List: true}
	fieldCreated  = Field{Name: "created_at", Label: "Created", Type: TypeDateTime, ReadOnly: true}
	fieldUpdated  = Field{Name: "updated_at", Label: "Updated", Type: TypeDateTime, ReadOnly: true}
)

func init() {
	register(&Kind{
		Slug:       HeroBanners,
		Title:      "Hero Banners",
		Singular:   "Hero Banner",
		APIPath:    "/api/hero-banners",
		TitleField: "title",
		Fields: []Field{
			{Name: "title", Label: "Title", Type: TypeText, Required: true, List: true},
			{Name: "subtitle", Label: "Subtitle", Type: TypeText},
			{Name: "description", Label: "Description", Type: TypeTextarea},
			{Name: "image_url", Label: "Image URL", Type: TypeURL},
			{Name: "button_text", Label: "Button text", Type: TypeText},
			{Name: "button_link", Label: "Button link", Type: TypeText},
			fieldActive,
			fieldOrder,
			fieldCreated,
		},
	})

	register(&Kind{
		Slug:       Products,
		Title:      "Products",
		Singular:   "Product",
		APIPath:    "/api/products",
		TitleField: "name",
		Fields: []Field{
			{Name: "name", Label: "Name", Type: TypeText, Required: true, List: true},
			{Name: "category", Label: "Category", Type: TypeText, List: true},
			{Name: "price", Label: "Price", Type: TypeDecimal, List: true, Nullable: true},
			{Name: "short_description", Label: "Short description", Type: TypeText},
			{Name: "description", Label: "Description", Type: TypeTextarea},
			{Name: "features", Label: "Features", Type: TypeTextarea},
			{Name: "specifications", Label: "Specifications", Type: TypeTextarea},
			{Name: "image_url", Label: "Image URL", Type: TypeURL},
			{Name: "gallery_images", Label: "Gallery images", Type: TypeTextarea},
			fieldFeatured,
			fieldActive,
			fieldOrder,
			fieldCreated,
		},
	})

	register(&Kind{
		Slug:       Services,
		Title:      "Services",
		Singular:   "Service",
		APIPath:    "/api/services",
		TitleField: "name",
		Fields: []Field{
			{Name: "name", Label: "Name", Type: TypeText, Required: true, List: true},
			{Name: "price", Label: "Price", Type: TypeDecimal, List: true, Nullable: true},
			{Name: "duration", Label: "Duration", Type: TypeText, List: true},
			{Name: "short_description", Label: "Short description", Type: TypeText},
			{Name: "description", Label: "Description", Type: TypeTextarea},
			{Name: "long_description", Label: "Long description", Type: TypeTextarea},
			{Name: "features", Label: "Features", Type: TypeTextarea},
			{Name: "requirements", Label: "Requirements", Type: TypeTextarea},
			{Name: "icon", Label: "Icon", Type: TypeText},
			{Name: "image_url", Label: "Image URL", Type: TypeURL},
			{Name: "meta_description", Label: "Meta description", Type: TypeText},
			{Name: "keywords", Label: "Keywords", Type: TypeText},
			fieldFeatured,
			fieldActive,
			fieldOrder,
			fieldCreated,
		},
	})

	register(&Kind{
		Slug:       Team,
		Title:      "Team",
		Singular:   "Team Member",
		APIPath:    "/api/team",
		TitleField: "name",
		Fields: []Field{
			{Name: "name", Label: "Name", Type: TypeText, Required: true, List: true},
			{Name: "position", Label: "Position", Type: TypeText, Required: true, List: true},
			{Name: "department", Label: "Department", Type: TypeText, List: true},
			{Name: "bio", Label: "Bio", Type: TypeTextarea},
			{Name: "email", Label: "Email", Type: TypeEmail},
			{Name: "phone", Label: "Phone", Type: TypeText},
			{Name: "linkedin_url", Label: "LinkedIn", Type: TypeURL},
			{Name: "twitter_url", Label: "Twitter", Type: TypeURL},
			{Name: "image_url", Label: "Photo URL", Type: TypeURL},
			fieldActive,
			fieldOrder,
			fieldCreated,
		},
	})

	register(&Kind{
		Slug:       News,
		Title:      "News",
		Singular:   "Article",
		APIPath:    "/api/news",
		TitleField: "title",
		Fields: []Field{
			{Name: "title", Label: "Title", Type: TypeText, Required: true, List: true},
			{Name: "slug", Label: "Slug", Type: TypeText},
			{Name: "category", Label: "Category", Type: TypeText, List: true},
			{Name: "author", Label: "Author", Type: TypeText},
			{Name: "excerpt", Label: "Excerpt", Type: TypeTextarea},
			{Name: "content", Label: "Content", Type: TypeTextarea},
			{Name: "tags", Label: "Tags", Type: TypeText},
			{Name: "featured_image_url", Label: "Featured image URL", Type: TypeURL},
			{Name: "is_published", Label: "Published", Type: TypeBool, List: true},
			fieldFeatured,
			{Name: "publish_at", Label: "Publish at", Type: TypeDateTime, Nullable: true},
			{Name: "expires_at", Label: "Expires at", Type: TypeDateTime, Nullable: true},
			{Name: "priority", Label: "Priority", Type: TypeInt},
			{Name: "published_at", Label: "Published at", Type: TypeDateTime, ReadOnly: true, List: true},
			{Name: "views_count", Label: "Views", Type: TypeInt, ReadOnly: true},
			fieldCreated,
		},
	})

	register(&Kind{
		Slug:       Contacts,
		Title:      "Contacts",
		Singular:   "Contact",
		APIPath:    "/api/contacts",
		TitleField: "subject",
		NoCreate:   true,
		Fields: []Field{
			{Name: "name", Label: "Name", Type: TypeText, Required: true, List: true, ReadOnly: true},
			{Name: "email", Label: "Email", Type: TypeEmail, Required: true, List: true, ReadOnly: true},
			{Name: "phone", Label: "Phone", Type: TypeText, ReadOnly: true},
			{Name: "company", Label: "Company", Type: TypeText, ReadOnly: true},
			{Name: "subject", Label: "Subject", Type: TypeText, List: true, ReadOnly: true},
			{Name: "message", Label: "Message", Type: TypeTextarea, ReadOnly: true},
			{Name: "is_read", Label: "Read", Type: TypeBool, List: true},
			{Name: "is_replied", Label: "Replied", Type: TypeBool, List: true},
			{Name: "reply_message", Label: "Reply", Type: TypeTextarea, ReadOnly: true},
			{Name: "replied_at", Label: "Replied at", Type: TypeDateTime, ReadOnly: true},
			{Name: "created_at", Label: "Received", Type: TypeDateTime, ReadOnly: true, List: true},
		},
	})

	register(&Kind{
		Slug:       Company,
		Title:      "Company",
		Singular:   "Company",
		APIPath:    "/api/company",
		TitleField: "name",
		Singleton:  true,
		Fields: []Field{
			{Name: "name", Label: "Name", Type: TypeText, Required: true},
			{Name: "description", Label: "Description", Type: TypeTextarea},
			{Name: "mission", Label: "Mission", Type: TypeTextarea},
			{Name: "vision", Label: "Vision", Type: TypeTextarea},
			{Name: "values", Label: "Values", Type: TypeTextarea},
			{Name: "address", Label: "Address", Type: TypeText},
			{Name: "phone", Label: "Phone", Type: TypeText},
			{Name: "email", Label: "Email", Type: TypeEmail},
			{Name: "website", Label: "Website", Type: TypeURL},
			{Name: "founded_year", Label: "Founded", Type: TypeInt, Nullable: true},
			{Name: "logo_url", Label: "Logo URL", Type: TypeURL},
			{Name: "about_image_url", Label: "About image URL", Type: TypeURL},
			fieldUpdated,
		},
	})
}
