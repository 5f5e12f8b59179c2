package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestManagerCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(config.Config{AuthCookieSecure: true})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	m.Set(c, "refresh-token", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	if assert.Len(t, cookies, 1) {
		assert.Equal(t, DefaultCookieName, cookies[0].Name)
		assert.Equal(t, "refresh-token", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
	}
}

func TestManagerReadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(config.Config{})

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "abc"})
	c.Request.Header.Set("Authorization", "Bearer jwt-value")

	token, ok := m.ReadToken(c)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	bearer, ok := m.ReadBearer(c)
	assert.True(t, ok)
	assert.Equal(t, "jwt-value", bearer)
}
