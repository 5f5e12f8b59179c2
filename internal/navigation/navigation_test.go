package navigation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  string
	}{
		{"loading never redirects", State{Loading: true, Path: "/chat/1"}, ""},
		{"unverified never redirects", State{Unverified: true, Path: "/chat/1"}, ""},
		{"anonymous to auth", State{Path: "/onboarding"}, PathAuth},
		{"anonymous on auth stays", State{Path: "/auth"}, ""},
		{"no profile goes to onboarding", State{HasSession: true, Path: "/"}, PathOnboarding},
		{"no profile on onboarding stays", State{HasSession: true, Path: "/onboarding"}, ""},
		{"terms pending from auth", State{HasSession: true, HasProfile: true, Path: "/auth"}, PathOnboarding},
		{"terms pending from chat", State{HasSession: true, HasProfile: true, Path: "/chat/42"}, PathOnboarding},
		{"complete leaves auth", State{HasSession: true, HasProfile: true, TermsAccepted: true, Path: "/auth"}, PathHome},
		{"complete leaves onboarding", State{HasSession: true, HasProfile: true, TermsAccepted: true, Path: "/onboarding/"}, PathHome},
		{"complete elsewhere stays", State{HasSession: true, HasProfile: true, TermsAccepted: true, Path: "/tool/7"}, ""},
		{"query string ignored", State{HasSession: true, HasProfile: true, TermsAccepted: true, Path: "/auth?type=signin"}, PathHome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.state).Redirect)
		})
	}
}

func TestDecidePublic(t *testing.T) {
	assert.False(t, DecidePublic(State{Path: "/popular"}).ShouldRedirect())
	assert.Equal(t, PathOnboarding, DecidePublic(State{HasSession: true, Path: "/popular"}).Redirect)
}

func TestGuardMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	state := State{HasSession: true}
	r.GET("/chat/:id", Guard(func(*gin.Context) State { return state }, Decide), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/5", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, PathOnboarding, rec.Header().Get("Location"))

	state = State{HasSession: true, HasProfile: true, TermsAccepted: true}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
