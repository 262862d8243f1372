package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"food-ordering-api/apperr"
	"food-ordering-api/catalog"
	"food-ordering-api/config"
	"food-ordering-api/events"
	"food-ordering-api/handlers"
	"food-ordering-api/identity"
	"food-ordering-api/orders"
	"food-ordering-api/routes"
	"food-ordering-api/storage"
)

type server struct {
	t      *testing.T
	router *gin.Engine
	events *events.Recorder
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.OpenDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	blobs, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	rec := &events.Recorder{}
	idSvc := identity.NewService(db, identity.NewTokenCodec("test-secret", "test", 0))
	if err := idSvc.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "admin-pass"); err != nil {
		t.Fatal(err)
	}
	cat := catalog.NewService(db, blobs, catalog.Options{RequireApproval: true, Publisher: rec})
	ord := orders.NewService(db, orders.Options{RequireApproval: true, Publisher: rec})

	r := gin.New()
	routes.SetupRoutes(r, handlers.New(idSvc, cat, ord, blobs, nil), idSvc)
	return &server{t: t, router: r, events: rec}
}

type request struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

func (s *server) do(req request) *httptest.ResponseRecorder {
	s.t.Helper()
	var body io.Reader
	contentType := ""
	switch b := req.body.(type) {
	case nil:
	case *multipartBody:
		body, contentType = &b.buf, b.contentType
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			s.t.Fatal(err)
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

// expect performs req, checks the status and decodes the reply into out.
func (s *server) expect(req request, status int, out any) {
	s.t.Helper()
	w := s.do(req)
	if w.Code != status {
		s.t.Fatalf("%s %s: status = %d, want %d; body %s", req.method, req.path, w.Code, status, w.Body)
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode: %v", req.method, req.path, err)
		}
	}
}

func (s *server) token(email, password string) string {
	s.t.Helper()
	var res struct {
		Token string `json:"token"`
	}
	s.expect(request{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": email, "password": password}}, http.StatusOK, &res)
	return res.Token
}

func (s *server) register(name, email, role string) string {
	s.t.Helper()
	var res struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	s.expect(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"name": name, "email": email, "password": "secret1", "role": role,
	}}, http.StatusCreated, &res)
	if res.Token == "" {
		s.t.Fatal("register returned no token")
	}
	return res.Token
}

type multipartBody struct {
	buf         bytes.Buffer
	contentType string
}

func menuForm(t *testing.T, fields map[string]string, filename, fileType string, file []byte) *multipartBody {
	t.Helper()
	b := &multipartBody{}
	mw := multipart.NewWriter(&b.buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, catalog.MenuImageField, filename))
		h.Set("Content-Type", fileType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	b.contentType = mw.FormDataContentType()
	return b
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) apperr.Response {
	t.Helper()
	var body apperr.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body, err)
	}
	return body
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newServer(t)

	var health map[string]string
	s.expect(request{method: http.MethodGet, path: "/health"}, http.StatusOK, &health)
	if health["status"] != "OK" || health["timestamp"] == "" {
		t.Errorf("health = %v", health)
	}

	w := s.do(request{method: http.MethodGet, path: "/api/nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := errorBody(t, w); body.Kind != apperr.KindNotFound || body.Error != "Route not found" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthEndpoints(t *testing.T) {
	s := newServer(t)
	token := s.register("Jane", "Jane@Example.com", "")

	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	s.expect(request{method: http.MethodGet, path: "/api/auth/me", token: token}, http.StatusOK, &me)
	if me.Email != "jane@example.com" || me.Role != "customer" {
		t.Errorf("me = %+v", me)
	}

	// duplicate email
	w := s.do(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"name": "Jane", "email": "jane@example.com", "password": "secret1",
	}})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register: status = %d, want 409", w.Code)
	}

	// validation reports every field
	w = s.do(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{"email": "bad"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid register: status = %d", w.Code)
	}
	got := map[string]bool{}
	for _, d := range errorBody(t, w).Details {
		got[d.Field] = true
	}
	for _, f := range []string{"name", "email", "password"} {
		if !got[f] {
			t.Errorf("missing detail for %q in %v", f, got)
		}
	}

	w = s.do(request{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "jane@example.com", "password": "wrong-pass"}})
	if w.Code != http.StatusUnauthorized || errorBody(t, w).Kind != apperr.KindInvalidCredentials {
		t.Errorf("wrong password: %d %s", w.Code, w.Body)
	}

	w = s.do(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"name": "Eve", "email": "eve@example.com", "password": "secret1", "role": "admin",
	}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self-registering as admin: status = %d, want 400", w.Code)
	}

	w = s.do(request{method: http.MethodGet, path: "/api/auth/me"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /me: status = %d", w.Code)
	}

	s.expect(request{method: http.MethodPut, path: "/api/auth/change-password", token: token,
		body: map[string]string{"currentPassword": "secret1", "newPassword": "secret2"}}, http.StatusOK, nil)
	s.token("jane@example.com", "secret2")
}

func TestMalformedJSON(t *testing.T) {
	s := newServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := errorBody(t, w)
	if body.Kind != apperr.KindValidation || len(body.Details) != 1 || body.Details[0].Field != "body" {
		t.Errorf("body = %+v", body)
	}
}

func TestCheckoutFlow(t *testing.T) {
	s := newServer(t)
	admin := s.token("admin@example.com", "admin-pass")
	owner := s.register("Olivia", "olivia@example.com", "restaurant_owner")
	customer := s.register("Carl", "carl@example.com", "customer")

	var restaurant struct {
		ID         string `json:"id"`
		IsApproved bool   `json:"isApproved"`
	}
	s.expect(request{method: http.MethodPost, path: "/api/restaurants", token: owner, body: map[string]any{
		"name":        "Luigi's",
		"description": "Wood-fired pizza",
		"cuisine":     "Italian",
		"address":     map[string]string{"street": "1 Main St", "city": "Dubai", "state": "DU", "zipCode": "00000"},
		"phone":       "555-0100",
		"email":       "luigi@example.com",
		"deliveryFee": "10.99",
	}}, http.StatusCreated, &restaurant)
	if restaurant.IsApproved {
		t.Fatal("new restaurant must start unapproved")
	}

	w := s.do(request{method: http.MethodPost, path: "/api/restaurants", token: customer, body: map[string]any{}})
	if w.Code != http.StatusForbidden {
		t.Errorf("customer creating a restaurant: status = %d, want 403", w.Code)
	}

	// hidden until approved
	if w := s.do(request{method: http.MethodGet, path: "/api/restaurants/" + restaurant.ID}); w.Code != http.StatusNotFound {
		t.Errorf("unapproved restaurant visible: status = %d", w.Code)
	}
	if w := s.do(request{method: http.MethodPut, path: "/api/restaurants/" + restaurant.ID + "/approve", token: owner}); w.Code != http.StatusForbidden {
		t.Errorf("owner approving: status = %d, want 403", w.Code)
	}
	s.expect(request{method: http.MethodPut, path: "/api/restaurants/" + restaurant.ID + "/approve", token: admin}, http.StatusOK, nil)

	var listing struct {
		Restaurants []struct {
			ID string `json:"id"`
		} `json:"restaurants"`
	}
	s.expect(request{method: http.MethodGet, path: "/api/restaurants?cuisine=Italian"}, http.StatusOK, &listing)
	if len(listing.Restaurants) != 1 || listing.Restaurants[0].ID != restaurant.ID {
		t.Fatalf("listing = %+v", listing)
	}

	// menu item with an uploaded image
	png := []byte("\x89PNG\r\n\x1a\nfake")
	form := menuForm(t, map[string]string{
		"name":        "Margherita",
		"description": "Tomato and mozzarella",
		"category":    "Main Course",
		"price":       "45.00",
		"dietary":     "Vegetarian",
		"isAvailable": "true",
	}, "pizza.png", "image/png", png)
	var item struct {
		ID      string          `json:"id"`
		Image   string          `json:"image"`
		Price   decimal.Decimal `json:"price"`
		Dietary []string        `json:"dietary"`
	}
	s.expect(request{method: http.MethodPost, path: "/api/menus", token: owner, body: form}, http.StatusCreated, &item)
	if !strings.HasPrefix(item.Image, storage.URLPrefix) {
		t.Fatalf("image = %q, want a %s URL", item.Image, storage.URLPrefix)
	}
	if !item.Price.Equal(decimal.RequireFromString("45")) || len(item.Dietary) != 1 {
		t.Errorf("item = %+v", item)
	}

	w = s.do(request{method: http.MethodGet, path: item.Image})
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), png) {
		t.Errorf("serving upload: status = %d, body %q", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("upload content type = %q", ct)
	}

	bad := menuForm(t, map[string]string{"name": "x"}, "notes.txt", "text/plain", []byte("hi"))
	w = s.do(request{method: http.MethodPost, path: "/api/menus", token: owner, body: bad})
	if w.Code != http.StatusBadRequest {
		t.Errorf("text upload: status = %d, want 400", w.Code)
	}

	var menu []struct {
		ID string `json:"id"`
	}
	s.expect(request{method: http.MethodGet, path: "/api/menus/restaurant/" + restaurant.ID}, http.StatusOK, &menu)
	if len(menu) != 1 || menu[0].ID != item.ID {
		t.Fatalf("menu = %+v", menu)
	}

	orderBody := map[string]any{
		"restaurantId":    restaurant.ID,
		"items":           []map[string]any{{"menuItemId": item.ID, "quantity": 2}},
		"deliveryAddress": map[string]string{"street": "2 Side St", "city": "Dubai", "state": "DU", "zipCode": "00000"},
		"contactInfo":     map[string]string{"phone": "555-0199"},
		"paymentMethod":   "Cash on Delivery",
	}
	key := map[string]string{handlers.IdempotencyHeader: "checkout-1"}
	type order struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Pricing struct {
			Subtotal decimal.Decimal `json:"subtotal"`
			Tax      decimal.Decimal `json:"tax"`
			Total    decimal.Decimal `json:"total"`
		} `json:"pricing"`
	}
	var first, replay order
	s.expect(request{method: http.MethodPost, path: "/api/orders", token: customer, body: orderBody, headers: key}, http.StatusCreated, &first)
	s.expect(request{method: http.MethodPost, path: "/api/orders", token: customer, body: orderBody, headers: key}, http.StatusCreated, &replay)
	if first.ID != replay.ID {
		t.Errorf("replayed checkout created a second order: %s vs %s", first.ID, replay.ID)
	}
	if first.Status != "Pending" {
		t.Errorf("status = %q", first.Status)
	}
	if !first.Pricing.Subtotal.Equal(decimal.RequireFromString("90")) || !first.Pricing.Total.Equal(decimal.RequireFromString("108.64")) {
		t.Errorf("pricing = %+v", first.Pricing)
	}

	var mine []order
	s.expect(request{method: http.MethodGet, path: "/api/orders/user", token: customer}, http.StatusOK, &mine)
	if len(mine) != 1 {
		t.Errorf("customer has %d orders, want 1", len(mine))
	}

	// customers cannot move their own order
	w = s.do(request{method: http.MethodPut, path: "/api/orders/" + first.ID + "/status", token: customer,
		body: map[string]string{"status": "Confirmed"}})
	if w.Code != http.StatusForbidden {
		t.Errorf("customer status update: status = %d, want 403", w.Code)
	}

	w = s.do(request{method: http.MethodPut, path: "/api/orders/" + first.ID + "/status", token: owner,
		body: map[string]string{"status": "Delivered"}})
	if w.Code != http.StatusUnprocessableEntity || errorBody(t, w).Kind != apperr.KindInvalidTransition {
		t.Errorf("skipping ahead: %d %s", w.Code, w.Body)
	}

	var confirmed order
	s.expect(request{method: http.MethodPut, path: "/api/orders/" + first.ID + "/status", token: owner,
		body: map[string]string{"status": "Confirmed", "note": "on it"}}, http.StatusOK, &confirmed)
	if confirmed.Status != "Confirmed" {
		t.Errorf("status = %q", confirmed.Status)
	}

	var history []struct {
		ToStatus string `json:"toStatus"`
	}
	s.expect(request{method: http.MethodGet, path: "/api/orders/" + first.ID + "/history", token: customer}, http.StatusOK, &history)
	if len(history) != 2 || history[1].ToStatus != "Confirmed" {
		t.Errorf("history = %+v", history)
	}

	var summary struct {
		Total   int64            `json:"total"`
		Summary map[string]int64 `json:"summary"`
	}
	s.expect(request{method: http.MethodGet, path: "/api/admin/orders", token: admin}, http.StatusOK, &summary)
	if summary.Total != 1 || summary.Summary["Confirmed"] != 1 {
		t.Errorf("admin summary = %+v", summary)
	}
	if w := s.do(request{method: http.MethodGet, path: "/api/admin/orders", token: owner}); w.Code != http.StatusForbidden {
		t.Errorf("owner on admin route: status = %d", w.Code)
	}

	if got := len(s.events.Events()); got != 2 {
		t.Errorf("published %d events, want 2", got)
	}
}

func TestStateMachineInfoIsPublic(t *testing.T) {
	s := newServer(t)
	var info struct {
		Transitions []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"transitions"`
		TerminalStates []string `json:"terminal_states"`
	}
	s.expect(request{method: http.MethodGet, path: "/api/orders/state-machine"}, http.StatusOK, &info)
	if len(info.TerminalStates) != 2 {
		t.Errorf("terminal states = %v", info.TerminalStates)
	}
	fromPending := 0
	for _, tr := range info.Transitions {
		if tr.From == "Pending" {
			fromPending++
		}
	}
	if len(info.Transitions) != 8 || fromPending != 2 {
		t.Errorf("transitions = %+v", info.Transitions)
	}
}

func TestServeUploadRejectsTraversal(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/uploads/../config.go", "/uploads/menu-items/missing.png"} {
		if w := s.do(request{method: http.MethodGet, path: path}); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, w.Code)
		}
	}
}
