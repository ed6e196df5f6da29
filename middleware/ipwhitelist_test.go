package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whitelistStatus(entries []string, ip string) int {
	r := gin.New()
	r.Use(IPWhitelist(entries))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestIPWhitelist_Empty_AllowsAll(t *testing.T) {
	assert.Equal(t, http.StatusOK, whitelistStatus(nil, "1.2.3.4"))
}

func TestIPWhitelist_SingleAddresses(t *testing.T) {
	allowed := []string{"10.0.0.1", "::1"}
	assert.Equal(t, http.StatusOK, whitelistStatus(allowed, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, whitelistStatus(allowed, "::1"))
	assert.Equal(t, http.StatusForbidden, whitelistStatus(allowed, "10.0.0.2"))
}

func TestIPWhitelist_CIDR(t *testing.T) {
	allowed := []string{"192.168.0.0/16", "bogus"}
	assert.Equal(t, http.StatusOK, whitelistStatus(allowed, "192.168.7.20"))
	assert.Equal(t, http.StatusForbidden, whitelistStatus(allowed, "172.16.0.1"))
}

func TestIPWhitelist_OnlyInvalidEntriesDeniesAll(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, whitelistStatus([]string{"nope"}, "10.0.0.1"))
}
