package navigation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StateFunc resolves the guard inputs for the current request.
type StateFunc func(c *gin.Context) State

// Guard redirects with 303 See Other so the browser replaces the entry.
func Guard(state StateFunc, decide func(State) Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := state(c)
		s.Path = c.Request.URL.Path
		decision := decide(s)
		if decision.ShouldRedirect() {
			c.Redirect(http.StatusSeeOther, decision.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}
