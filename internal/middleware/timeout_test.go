package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTimeout_SetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Second))
	r.GET("/t", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		if !ok {
			c.String(http.StatusOK, "none")
			return
		}
		if time.Until(deadline) > time.Second {
			c.String(http.StatusOK, "too far")
			return
		}
		c.String(http.StatusOK, "set")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))
	if w.Body.String() != "set" {
		t.Errorf("deadline = %q; want set", w.Body.String())
	}
}

func TestTimeout_ZeroDisables(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(0))
	r.GET("/t", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); ok {
			c.String(http.StatusOK, "set")
			return
		}
		c.String(http.StatusOK, "none")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))
	if w.Body.String() != "none" {
		t.Errorf("deadline = %q; want none", w.Body.String())
	}
}
