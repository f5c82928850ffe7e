package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/eugener/stash/internal/auth"
	"github.com/eugener/stash/internal/respcache"
	"github.com/eugener/stash/internal/testutil"
)

func newAdminHandler(t *testing.T, key string) (http.Handler, Origin, *upstream) {
	t.Helper()
	up := jsonUpstream(t)
	o := newOrigin(t, "api", "/api", up.URL, respcache.Options{})
	h := New(Deps{
		Origins:  []Origin{o, newOrigin(t, "pages", "/pages", up.URL, respcache.Options{})},
		AdminKey: auth.NewStaticKey(key),
	})
	return h, o, up
}

func TestAdmin_RequiresKey(t *testing.T) {
	t.Parallel()
	h, _, _ := newAdminHandler(t, "admin-secret")

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"right key", []string{"Authorization", "Bearer admin-secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(h, http.MethodGet, "/admin/caches", nil, tt.header...)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAdmin_ListCaches(t *testing.T) {
	t.Parallel()
	h, _, _ := newAdminHandler(t, "")

	serve(h, http.MethodGet, "/api/a", nil)
	serve(h, http.MethodGet, "/api/b", nil)

	rec := serve(h, http.MethodGet, "/admin/caches", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []cacheInfo `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("caches = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].Name != "api" || resp.Data[1].Name != "pages" {
		t.Errorf("names = %q, %q; want sorted", resp.Data[0].Name, resp.Data[1].Name)
	}
	if resp.Data[0].Entries == nil || *resp.Data[0].Entries != 2 {
		t.Errorf("api entries = %v, want 2", resp.Data[0].Entries)
	}
}

func TestAdmin_GetCache(t *testing.T) {
	t.Parallel()
	h, _, _ := newAdminHandler(t, "")

	rec := serve(h, http.MethodGet, "/admin/caches/pages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info cacheInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Prefix != "/pages" || info.ResponseType != "json" {
		t.Errorf("info = %+v", info)
	}

	rec = serve(h, http.MethodGet, "/admin/caches/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown cache status = %d, want 404", rec.Code)
	}
}

func TestAdmin_ClearCache(t *testing.T) {
	t.Parallel()
	h, o, up := newAdminHandler(t, "")

	serve(h, http.MethodGet, "/api/a", nil)
	rec := serve(h, http.MethodDelete, "/admin/caches/api", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if n, _ := o.Gateway.Size(context.Background()); n != 0 {
		t.Errorf("size after clear = %d, want 0", n)
	}
	serve(h, http.MethodGet, "/api/a", nil)
	if n := up.calls.Load(); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
}

func TestAdmin_Invalidate(t *testing.T) {
	t.Parallel()
	h, o, up := newAdminHandler(t, "")

	serve(h, http.MethodGet, "/api/24hours?q=0", nil)
	serve(h, http.MethodGet, "/api/other", nil)

	rec := serve(h, http.MethodPost, "/admin/caches/api/invalidate",
		strings.NewReader(`{"path":"/api/24hours?q=0"}`))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if n, _ := o.Gateway.Size(context.Background()); n != 1 {
		t.Errorf("size = %d, want 1", n)
	}

	serve(h, http.MethodGet, "/api/24hours?q=0", nil)
	serve(h, http.MethodGet, "/api/other", nil)
	if n := up.calls.Load(); n != 3 {
		t.Errorf("upstream calls = %d, want 3", n)
	}
}

func TestAdmin_InvalidateBadRequest(t *testing.T) {
	t.Parallel()
	h, _, _ := newAdminHandler(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"relative path", `{"path":"api/x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(h, http.MethodPost, "/admin/caches/api/invalidate", strings.NewReader(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAdmin_StoreErrors(t *testing.T) {
	t.Parallel()

	o := newOrigin(t, "down", "/down", "http://127.0.0.1:1", respcache.Options{Store: testutil.FailStore{}})
	h := New(Deps{Origins: []Origin{o}})

	rec := serve(h, http.MethodDelete, "/admin/caches/down", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("clear status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "store down") {
		t.Error("internal error leaked to client")
	}

	rec = serve(h, http.MethodGet, "/admin/caches/down", nil)
	var info cacheInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Entries != nil {
		t.Errorf("entries = %v, want null", *info.Entries)
	}
}
