package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/types"
	"github.com/memtensor/usergrid/pkg/users"
)

const ctxUser = "user"

// authRequired resolves the bearer token to an active user
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.Header("WWW-Authenticate", "Bearer")
			s.handleError(c, apperrors.NewUnauthorizedError(MsgNotAuthed))
			return
		}

		user, err := s.manager.CurrentUser(c.Request.Context(), tokenString)
		if err != nil {
			s.handleError(c, err)
			return
		}

		c.Set(ctxUser, user)
		c.Request = c.Request.WithContext(types.WithUserID(c.Request.Context(), strconv.FormatUint(user.ID, 10)))
		c.Next()
	}
}

// superuserRequired rejects users without admin rights. It must run after
// authRequired.
func (s *Server) superuserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.RequireSuperuser(currentUser(c)); err != nil {
			s.handleError(c, err)
			return
		}
		c.Next()
	}
}

// currentUser returns the user set by authRequired, if any
func currentUser(c *gin.Context) *users.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	user, _ := v.(*users.User)
	return user
}

func extractTokenFromHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// abortTooManyRequests answers a throttled request
func abortTooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Fail(MsgTooManyRequest, nil))
}
