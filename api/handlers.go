package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memtensor/usergrid/pkg/datatable"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/types"
	"github.com/memtensor/usergrid/pkg/users"
)

// Client facing messages of the transport layer
const (
	MsgDuplicate      = "Data existed! Must change!"
	MsgInvalidBody    = "Invalid request body"
	MsgInvalidID      = "Invalid `id` params!"
	MsgInternal       = "Internal Server Error"
	MsgNotAuthed      = "Not authenticated"
	MsgTooManyRequest = "Too many requests"
)

// healthCheck reports the database and token store status
// @Summary Health Check
// @Description Report database and token store status
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    map[string]string{"database": "ok"},
	}

	status := http.StatusOK
	if err := s.manager.HealthCheck(ctx); err != nil {
		appErr := apperrors.NewServiceUnavailableError("database")
		s.logger.Warn("Health check failed", map[string]interface{}{
			"error": err.Error(),
			"code":  appErr.Code,
		})
		health.Status = "unhealthy"
		health.Checks["database"] = appErr.Message
		status = appErr.HTTPStatus()
	}

	c.JSON(status, health)
}

// login exchanges credentials for a bearer token
// @Summary Login
// @Description OAuth2 compatible token login
// @Tags auth
// @Accept x-www-form-urlencoded,json
// @Produce json
// @Param username formData string true "Username"
// @Param password formData string true "Password"
// @Success 200 {object} types.Token
// @Failure 400 {object} Response
// @Failure 422 {object} Response
// @Failure 429 {object} Response
// @Router /auth/login [post]
func (s *Server) login(c *gin.Context) {
	var creds users.LoginCredentials
	if err := c.ShouldBind(&creds); err != nil {
		s.bindError(c, err)
		return
	}

	token, err := s.manager.Authenticate(c.Request.Context(), creds)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// recoverPassword mails a reset link to the given address
// @Summary Password Recovery
// @Tags auth
// @Produce json
// @Param email path string true "Account email"
// @Success 200 {object} types.Msg
// @Failure 404 {object} Response
// @Router /auth/password-recovery/{email} [post]
func (s *Server) recoverPassword(c *gin.Context) {
	if err := s.manager.RecoverPassword(c.Request.Context(), c.Param("email")); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.Msg{Msg: users.MsgRecoverySent})
}

// resetPassword sets a new password from a reset token
// @Summary Reset Password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body users.ResetPasswordParams true "Reset token and new password"
// @Success 200 {object} types.Msg
// @Failure 400 {object} Response
// @Router /auth/reset-password [post]
func (s *Server) resetPassword(c *gin.Context) {
	var params users.ResetPasswordParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.bindError(c, err)
		return
	}

	if err := s.manager.ResetPassword(c.Request.Context(), params); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.Msg{Msg: users.MsgPasswordUpdated})
}

// listUsers serves the users grid, or its CSV export when action=export
// @Summary List Users
// @Description Server-side datatable over non-admin users
// @Tags users
// @Produce json,text/csv
// @Security BearerAuth
// @Param k query string false "Search keyword"
// @Param p query int false "Page, starting at 1"
// @Param ipp query int false "Items per page"
// @Param action query string false "ajax, excel or csv"
// @Param sort query string false "Orderable column key"
// @Param dir query string false "asc or desc"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /users [get]
func (s *Server) listUsers(c *gin.Context) {
	var params datatable.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		s.bindError(c, err)
		return
	}

	table := s.manager.Table()
	opts, err := table.ParseOptions(params)
	if err != nil {
		s.handleError(c, err)
		return
	}

	if opts.Mode == datatable.ModeExport {
		var buf bytes.Buffer
		if err := table.Export(c.Request.Context(), s.manager.DB(), opts, &buf); err != nil {
			s.handleError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+table.Name()+`.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	result, err := table.Render(c.Request.Context(), s.manager.DB(), opts, nil)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OK("", result))
}

// userColumns describes the users grid
// @Summary Users Grid Columns
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=ColumnsResponse}
// @Router /users/columns [get]
func (s *Server) userColumns(c *gin.Context) {
	table := s.manager.Table()
	rowIndex, _ := table.Registry().RowIndexName()
	limits := table.Limits()

	c.JSON(http.StatusOK, OK("", ColumnsResponse{
		Table:    table.Name(),
		Columns:  table.Registry().Columns(),
		RowIndex: rowIndex,
		Limits:   LimitsInfo{Default: limits.Default, Max: limits.Max},
	}))
}

// createUser handles user creation
// @Summary Create User
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body users.CreateUserParams true "New account"
// @Success 200 {object} Response{data=users.User}
// @Failure 400 {object} Response
// @Failure 422 {object} Response
// @Router /users [post]
func (s *Server) createUser(c *gin.Context) {
	var params users.CreateUserParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.bindError(c, err)
		return
	}

	user, err := s.manager.CreateUser(c.Request.Context(), params)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OK(users.MsgUserCreated, user))
}

// getUser returns one account
// @Summary Get User
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} Response{data=users.User}
// @Failure 404 {object} Response
// @Router /users/{id} [get]
func (s *Server) getUser(c *gin.Context) {
	id, ok := s.userID(c)
	if !ok {
		return
	}

	user, err := s.manager.GetUser(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OK("", user))
}

// updateUser applies a partial update to an account
// @Summary Update User
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body users.UpdateUserParams true "Fields to change"
// @Success 200 {object} Response{data=users.User}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /users/{id} [put]
func (s *Server) updateUser(c *gin.Context) {
	id, ok := s.userID(c)
	if !ok {
		return
	}

	var params users.UpdateUserParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.bindError(c, err)
		return
	}

	user, err := s.manager.UpdateUser(c.Request.Context(), id, params)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OK(users.MsgUserUpdated, user))
}

// deleteUser removes an account
// @Summary Delete User
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} Response{data=users.User}
// @Failure 404 {object} Response
// @Router /users/{id} [delete]
func (s *Server) deleteUser(c *gin.Context) {
	id, ok := s.userID(c)
	if !ok {
		return
	}

	user, err := s.manager.DeleteUser(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OK(users.MsgUserDeleted, user))
}

// getMe returns the signed-in account
// @Summary Current User
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=users.User}
// @Router /users/me [get]
func (s *Server) getMe(c *gin.Context) {
	c.JSON(http.StatusOK, OK("", currentUser(c)))
}

// updateMe lets the signed-in user change their own details
// @Summary Update Current User
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body users.UpdateMeParams true "Fields to change"
// @Success 200 {object} Response{data=users.User}
// @Failure 400 {object} Response
// @Router /users/me [put]
func (s *Server) updateMe(c *gin.Context) {
	var params users.UpdateMeParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.bindError(c, err)
		return
	}

	user, err := s.manager.UpdateMe(c.Request.Context(), currentUser(c), params)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, OK(users.MsgUserUpdated, user))
}

// userID parses the :id path parameter
func (s *Server) userID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		s.handleError(c, apperrors.NewValidationError(MsgInvalidID).WithDetail("id", c.Param("id")))
		return 0, false
	}
	return id, true
}

// bindError answers a body or query that could not be decoded
func (s *Server) bindError(c *gin.Context, err error) {
	s.logger.Debug("Request binding failed", map[string]interface{}{
		"request_id": c.GetString(ctxRequestID),
		"path":       c.Request.URL.Path,
		"error":      err.Error(),
	})
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, Fail(MsgInvalidBody, []ErrorDetail{{Message: err.Error()}}))
}

// handleError writes err as an error envelope. Causes are logged, never sent.
func (s *Server) handleError(c *gin.Context, err error) {
	requestID := c.GetString(ctxRequestID)

	var list *apperrors.ErrorList
	if errors.As(err, &list) {
		details := make([]ErrorDetail, 0, len(list.Errors))
		for _, e := range list.Errors {
			d := ErrorDetail{Message: e.Message}
			if field, ok := e.Details["field"].(string); ok {
				d.Field = field
			}
			if tag, ok := e.Details["tag"].(string); ok {
				d.Tag = tag
			}
			details = append(details, d)
		}
		message := MsgInvalidBody
		if len(details) > 0 {
			message = details[0].Message
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, Fail(message, details))
		return
	}

	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		appErr = apperrors.NewInternalErrorWithCause(MsgInternal, err)
	}

	status := appErr.HTTPStatus()
	message := appErr.Message
	switch {
	case appErr.Code == apperrors.ErrCodeAlreadyExists:
		message = MsgDuplicate
	case status >= http.StatusInternalServerError:
		message = MsgInternal
	}

	fields := map[string]interface{}{
		"request_id": requestID,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"code":       string(appErr.Code),
		"status":     status,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", err, fields)
	} else {
		s.logger.Debug("Request rejected: "+appErr.Message, fields)
	}

	c.AbortWithStatusJSON(status, Fail(message, nil))
}
