package pkg

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/usersvc/internal/domain"
)

// Response is the standard JSON envelope for API responses.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationErrorResponse is the JSON envelope for validation error responses.
type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// Success sends a 200 JSON response with the given data.
func Success(c *gin.Context, data any) {
	respond(c, http.StatusOK, "success", data)
}

// Created sends a 201 JSON response with the given data.
func Created(c *gin.Context, data any) {
	respond(c, http.StatusCreated, "created", data)
}

// List sends a 200 JSON response carrying a domain.Page.
func List[T any](c *gin.Context, page *domain.Page[T]) {
	if page != nil && page.Data == nil {
		page.Data = []T{}
	}
	respond(c, http.StatusOK, "success", page)
}

// Error sends a JSON error response. The status comes from domain.HTTPStatusCode
// and the message from the *domain.AppError. Internal errors and anything that
// is not an *domain.AppError are reported as an opaque internal server error.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)
	msg := domain.ErrInternal.Message
	if appErr, ok := domain.AsAppError(err); ok && appErr.Code != domain.CodeInternal && appErr.Message != "" {
		msg = appErr.Message
	}
	respond(c, status, msg, nil)
}

func respond(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Response{
		Code:    status,
		Message: msg,
		Data:    data,
	})
}

// ValidationError sends a 400 JSON response with per-field validation error details.
func ValidationError(c *gin.Context, err error) {
	writeValidationError(c, err, nil)
}

// BindAndValidate binds the request body to obj and validates it.
// On failure it sends a ValidationError response and returns false:
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		writeValidationError(c, err, obj)
		return false
	}
	return true
}

// FieldErrors flattens validator errors into a json-name -> message map.
// It returns nil when err holds no validator.ValidationErrors.
func FieldErrors(err error, obj any) map[string]string {
	ve, ok := asValidationErrors(err)
	if !ok {
		return nil
	}
	jsonTags := buildJSONTagMap(obj)
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		name, ok := jsonTags[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		out[name] = describeFieldError(fe)
	}
	return out
}

func writeValidationError(c *gin.Context, err error, obj any) {
	fields := FieldErrors(err, obj)
	if fields == nil {
		// Malformed body or a type mismatch.
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Code:    http.StatusBadRequest,
		Message: domain.ErrValidation.Message,
		Errors:  fields,
	})
}

func asValidationErrors(err error) (validator.ValidationErrors, bool) {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		return ve, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok && u.Unwrap() != nil {
		return asValidationErrors(u.Unwrap())
	}
	return nil, false
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case StrongPasswordTag:
		return "is not strong enough"
	case "min", "max":
		return fe.Tag() + "=" + fe.Param()
	}
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// buildJSONTagMap returns a map from struct field name to its JSON tag name.
func buildJSONTagMap(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	m := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if name := parseJSONTagName(f.Tag.Get("json")); name != "" {
			m[f.Name] = name
		}
	}
	return m
}

func parseJSONTagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
