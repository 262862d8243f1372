package handlers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"

	"food-ordering-api/apperr"
	"food-ordering-api/catalog"
	"food-ordering-api/middleware"
	"food-ordering-api/storage"
)

// maxFormOverhead is the room left for text fields next to the image.
const maxFormOverhead = 1 << 20

// GetMenu returns a restaurant's menu. Owners pass available=false to include
// items that are switched off.
func (h *Handler) GetMenu(c *gin.Context) {
	f := catalog.MenuFilter{
		Category:      c.Query("category"),
		AvailableOnly: c.Query("available") != "false",
	}
	items, err := h.catalog.ListMenuItemsByRestaurant(c.Request.Context(), middleware.GetIdentity(c), c.Param("restaurantId"), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateMenuItem(c *gin.Context) {
	var req catalog.MenuItemInput
	upload, closeUpload, err := bindMenuRequest(c, &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeUpload()

	item, err := h.catalog.CreateMenuItem(c.Request.Context(), middleware.GetIdentity(c), req, upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) UpdateMenuItem(c *gin.Context) {
	var req catalog.MenuItemUpdate
	upload, closeUpload, err := bindMenuRequest(c, &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeUpload()

	item, err := h.catalog.UpdateMenuItem(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"), req, upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) DeleteMenuItem(c *gin.Context) {
	if err := h.catalog.DeleteMenuItem(c.Request.Context(), middleware.GetIdentity(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Menu item deleted successfully"})
}

// bindMenuRequest accepts either a JSON body or a multipart form whose text
// fields mirror the JSON keys and whose image travels in catalog.MenuImageField.
func bindMenuRequest(c *gin.Context, v any) (*storage.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return nil, noop, bindJSON(c, v)
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+maxFormOverhead)
	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, noop, apperr.Validation(apperr.Field(catalog.MenuImageField, "Image must be 5MB or smaller"))
		}
		return nil, noop, apperr.Validation(apperr.Field("body", "Invalid multipart form: "+err.Error()))
	}

	body, err := formJSON(form.Value, reflect.TypeOf(v).Elem())
	if err != nil {
		return nil, noop, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, noop, apperr.Validation(apperr.Field("body", "Invalid form fields: "+err.Error()))
	}

	files := form.File[catalog.MenuImageField]
	if len(files) == 0 {
		return nil, noop, nil
	}
	return openUpload(files[0])
}

func openUpload(fh *multipart.FileHeader) (*storage.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, apperr.Validation(apperr.Field(catalog.MenuImageField, "Could not read uploaded image"))
	}
	up := &storage.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}
	return up, func() { f.Close() }, nil
}

// formJSON turns form values into a JSON object for t. String fields are quoted;
// everything else is passed through when it is already valid JSON, so a form
// can carry numbers, booleans and JSON-encoded arrays or objects.
func formJSON(values map[string][]string, t reflect.Type) ([]byte, error) {
	kinds := map[string]reflect.Kind{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		kinds[name] = ft.Kind()
	}

	obj := map[string]json.RawMessage{}
	for key, vals := range values {
		kind, ok := kinds[key]
		if !ok || len(vals) == 0 {
			continue
		}
		var raw []byte
		var err error
		switch {
		case kind == reflect.String:
			raw, err = json.Marshal(vals[0])
		case kind == reflect.Slice && len(vals) > 1:
			raw, err = json.Marshal(vals)
		case json.Valid([]byte(vals[0])):
			raw = []byte(vals[0])
		case kind == reflect.Slice:
			raw, err = json.Marshal(splitList(vals[0]))
		default:
			raw, err = json.Marshal(vals[0])
		}
		if err != nil {
			return nil, apperr.Validation(apperr.Field(key, "Invalid value"))
		}
		obj[key] = raw
	}
	return json.Marshal(obj)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
