package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/resource"
)

const (
	listPageSize  = 20
	activityLimit = 10
)

type overviewCard struct {
	Kind  *resource.Kind
	Count int64
	Note  string
}

type overviewView struct {
	layout
	Cards    []overviewCard
	Activity []apiclient.ActivityEntry
}

type listView struct {
	layout
	Kind    *resource.Kind
	Search  string
	Page    *apiclient.Page
	Columns []resource.Field
	PrevURL string
	NextURL string
}

type detailView struct {
	layout
	Kind     *resource.Kind
	Item     resource.Item
	Editable bool
	Contact  bool
	Error    string
}

type formView struct {
	layout
	Heading     string
	Error       string
	Action      string
	Cancel      string
	Fields      []resource.Field
	Values      map[string]any
	FieldErrors map[string]string
}

func (d *Dashboard) overview(c *gin.Context) {
	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	contacts, _ := resource.Lookup(resource.Contacts)
	news, _ := resource.Lookup(resource.News)

	var (
		stats        map[string]int64
		contactStats map[string]int64
		newsStats    map[string]int64
		activity     []apiclient.ActivityEntry
	)

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		stats, err = d.api.Stats(ctx, tok)
		return err
	})
	g.Go(func() (err error) {
		contactStats, err = d.api.KindStats(ctx, tok, contacts)
		return err
	})
	g.Go(func() (err error) {
		newsStats, err = d.api.KindStats(ctx, tok, news)
		return err
	})
	g.Go(func() (err error) {
		activity, err = d.api.Activity(ctx, tok, activityLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		d.fail(c, err)
		return
	}

	data := overviewView{layout: d.layout(c, "Overview"), Activity: activity}
	for _, kind := range resource.Collections() {
		card := overviewCard{Kind: kind, Count: stats[kind.Slug]}
		switch kind.Slug {
		case resource.Contacts:
			card.Note = fmt.Sprintf("%d unread, %d awaiting reply", contactStats["unread"], contactStats["unreplied"])
		case resource.News:
			card.Note = fmt.Sprintf("%d published, %d scheduled", newsStats["published"], newsStats["scheduled"])
		}
		data.Cards = append(data.Cards, card)
	}

	d.render(c, http.StatusOK, "overview", data)
}

// kind resolves the :kind parameter, answering 404 for unknown kinds
func (d *Dashboard) kind(c *gin.Context) (*resource.Kind, bool) {
	kind, ok := resource.Lookup(c.Param("kind"))
	if !ok {
		d.renderError(c, http.StatusNotFound, "Not found", "Unknown content type.")
	}
	return kind, ok
}

func (d *Dashboard) listPage(c *gin.Context) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.Singleton {
		d.singletonPage(c, kind)
		return
	}

	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	pageNum, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || pageNum < 1 {
		pageNum = 1
	}
	search := strings.TrimSpace(c.Query("search"))

	page, err := d.api.List(c.Request.Context(), tok, kind, apiclient.ListQuery{
		Skip:   (pageNum - 1) * listPageSize,
		Limit:  listPageSize,
		Search: search,
	})
	if err != nil {
		d.fail(c, err)
		return
	}

	data := listView{
		layout:  d.layout(c, kind.Title),
		Kind:    kind,
		Search:  search,
		Page:    page,
		Columns: kind.Columns(),
	}
	if pageNum > 1 {
		data.PrevURL = listURL(kind, search, pageNum-1)
	}
	if pageNum < page.Pages {
		data.NextURL = listURL(kind, search, pageNum+1)
	}

	d.render(c, http.StatusOK, "list", data)
}

func listURL(kind *resource.Kind, search string, page int) string {
	q := url.Values{"page": {strconv.Itoa(page)}}
	if search != "" {
		q.Set("search", search)
	}
	return "/admin/" + kind.Slug + "?" + q.Encode()
}

// singletonPage shows the company form. A missing record yields an empty
// form; saving it creates the record.
func (d *Dashboard) singletonPage(c *gin.Context, kind *resource.Kind) {
	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	item, err := d.api.Company(c.Request.Context(), tok)
	if err != nil && !errors.Is(err, apiclient.ErrNotFound) {
		d.fail(c, err)
		return
	}

	d.renderForm(c, http.StatusOK, kind, formView{
		Heading: kind.Title,
		Action:  "/admin/" + kind.Slug,
		Cancel:  d.cfg.LandingPath,
		Values:  item,
	})
}

func (d *Dashboard) newPage(c *gin.Context) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.Singleton || kind.NoCreate {
		d.renderError(c, http.StatusNotFound, "Not found", "New "+kind.Title+" cannot be created here.")
		return
	}

	values := map[string]any{}
	if _, ok := kind.Field("is_active"); ok {
		values["is_active"] = true
	}

	d.renderForm(c, http.StatusOK, kind, formView{
		Heading: "New " + kind.Singular,
		Action:  "/admin/" + kind.Slug,
		Cancel:  "/admin/" + kind.Slug,
		Values:  values,
	})
}

// createOrSave handles POST /admin/:kind: create for collections, update
// for singletons
func (d *Dashboard) createOrSave(c *gin.Context) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.NoCreate {
		d.renderError(c, http.StatusNotFound, "Not found", "New "+kind.Title+" cannot be created here.")
		return
	}

	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	view := formView{
		Heading: "New " + kind.Singular,
		Action:  "/admin/" + kind.Slug,
		Cancel:  "/admin/" + kind.Slug,
	}
	if kind.Singleton {
		view.Heading = kind.Title
		view.Cancel = d.cfg.LandingPath
	}

	payload, ok := d.parseForm(c, kind, view)
	if !ok {
		return
	}

	if kind.Singleton {
		if _, err := d.api.UpdateCompany(c.Request.Context(), tok, payload); err != nil {
			d.formFailure(c, kind, view, err)
			return
		}
		c.Redirect(http.StatusSeeOther, "/admin/"+kind.Slug+"?notice=saved")
		return
	}

	created, err := d.api.Create(c.Request.Context(), tok, kind, payload)
	if err != nil {
		d.formFailure(c, kind, view, err)
		return
	}
	c.Redirect(http.StatusSeeOther, itemURL(kind, created.ID())+"?notice=created")
}

func (d *Dashboard) detailPage(c *gin.Context) {
	d.showDetail(c, http.StatusOK, "")
}

func (d *Dashboard) showDetail(c *gin.Context, status int, message string) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.Singleton {
		d.renderError(c, http.StatusNotFound, "Not found", "The requested page does not exist.")
		return
	}

	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	item, err := d.api.Get(c.Request.Context(), tok, kind, c.Param("id"))
	if err != nil {
		d.fail(c, err)
		return
	}

	d.render(c, status, "detail", detailView{
		layout:   d.layout(c, kind.Label(item)),
		Kind:     kind,
		Item:     item,
		Editable: !kind.NoCreate,
		Contact:  kind.Slug == resource.Contacts,
		Error:    message,
	})
}

func (d *Dashboard) editPage(c *gin.Context) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.Singleton || kind.NoCreate {
		d.renderError(c, http.StatusNotFound, "Not found", kind.Title+" cannot be edited here.")
		return
	}

	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	id := c.Param("id")
	item, err := d.api.Get(c.Request.Context(), tok, kind, id)
	if err != nil {
		d.fail(c, err)
		return
	}

	d.renderForm(c, http.StatusOK, kind, formView{
		Heading: "Edit " + kind.Label(item),
		Action:  itemURL(kind, id),
		Cancel:  itemURL(kind, id),
		Values:  item,
	})
}

func (d *Dashboard) update(c *gin.Context) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.Singleton || kind.NoCreate {
		d.renderError(c, http.StatusNotFound, "Not found", kind.Title+" cannot be edited here.")
		return
	}

	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	id := c.Param("id")
	view := formView{
		Heading: "Edit " + kind.Singular,
		Action:  itemURL(kind, id),
		Cancel:  itemURL(kind, id),
	}

	payload, ok := d.parseForm(c, kind, view)
	if !ok {
		return
	}
	if _, err := d.api.Update(c.Request.Context(), tok, kind, id, payload); err != nil {
		d.formFailure(c, kind, view, err)
		return
	}
	c.Redirect(http.StatusSeeOther, itemURL(kind, id)+"?notice=saved")
}

func (d *Dashboard) remove(c *gin.Context) {
	kind, ok := d.kind(c)
	if !ok {
		return
	}
	if kind.Singleton {
		d.renderError(c, http.StatusNotFound, "Not found", kind.Title+" cannot be deleted.")
		return
	}

	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	if err := d.api.Delete(c.Request.Context(), tok, kind, c.Param("id")); err != nil {
		d.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/"+kind.Slug+"?notice=deleted")
}

// contact resolves :kind for the contact-only actions
func (d *Dashboard) contact(c *gin.Context) (string, bool) {
	if c.Param("kind") != resource.Contacts {
		d.renderError(c, http.StatusNotFound, "Not found", "The requested page does not exist.")
		return "", false
	}
	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return "", false
	}
	return tok, true
}

func (d *Dashboard) markRead(c *gin.Context) {
	tok, ok := d.contact(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := d.api.MarkContactRead(c.Request.Context(), tok, id); err != nil {
		d.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/"+resource.Contacts+"/"+url.PathEscape(id)+"?notice=read")
}

func (d *Dashboard) reply(c *gin.Context) {
	tok, ok := d.contact(c)
	if !ok {
		return
	}

	id := c.Param("id")
	message := strings.TrimSpace(c.PostForm("message"))
	if message == "" {
		d.showDetail(c, http.StatusUnprocessableEntity, "A reply message is required.")
		return
	}

	if _, err := d.api.ReplyContact(c.Request.Context(), tok, id, message); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			d.showDetail(c, apiErr.StatusCode, apiErr.Message)
			return
		}
		d.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/"+resource.Contacts+"/"+url.PathEscape(id)+"?notice=replied")
}

func itemURL(kind *resource.Kind, id string) string {
	return "/admin/" + kind.Slug + "/" + url.PathEscape(id)
}

// parseForm validates the posted form. On failure it re-renders the form
// with the submitted values and per-field messages.
func (d *Dashboard) parseForm(c *gin.Context, kind *resource.Kind, view formView) (resource.Item, bool) {
	if err := c.Request.ParseForm(); err != nil {
		view.Error = "The form could not be read."
		view.Values = map[string]any{}
		d.renderForm(c, http.StatusBadRequest, kind, view)
		return nil, false
	}

	payload, err := kind.ParseForm(c.Request.PostForm)
	if err != nil {
		var verr resource.ValidationError
		if errors.As(err, &verr) {
			view.FieldErrors = verr
		}
		view.Error = "Please correct the highlighted fields."
		view.Values = formValues(kind, c.Request.PostForm)
		d.renderForm(c, http.StatusUnprocessableEntity, kind, view)
		return nil, false
	}
	return payload, true
}

// formFailure re-renders a form rejected by the API. Errors that are not
// about the submitted data go through fail.
func (d *Dashboard) formFailure(c *gin.Context, kind *resource.Kind, view formView, err error) {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode >= http.StatusInternalServerError {
		d.fail(c, err)
		return
	}
	view.Error = apiErr.Message
	view.Values = formValues(kind, c.Request.PostForm)
	d.renderForm(c, apiErr.StatusCode, kind, view)
}

func (d *Dashboard) renderForm(c *gin.Context, status int, kind *resource.Kind, view formView) {
	view.layout = d.layout(c, view.Heading)
	view.Fields = kind.Editable()
	if view.Values == nil {
		view.Values = map[string]any{}
	}
	if view.FieldErrors == nil {
		view.FieldErrors = map[string]string{}
	}
	d.render(c, status, "form", view)
}

// formValues converts submitted strings back into the value shapes the form
// template renders, so a rejected form keeps what the user typed
func formValues(kind *resource.Kind, posted url.Values) map[string]any {
	values := make(map[string]any, len(posted))
	for _, f := range kind.Editable() {
		raw := posted.Get(f.Name)
		switch f.Type {
		case resource.TypeBool:
			values[f.Name] = raw == "on" || raw == "true" || raw == "1"
		case resource.TypeDateTime:
			if t, err := time.ParseInLocation(resource.DateTimeInputLayout, raw, time.UTC); err == nil {
				values[f.Name] = t
			}
		default:
			if raw != "" {
				values[f.Name] = raw
			}
		}
	}
	return values
}
