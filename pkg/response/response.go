package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Fields  []string    `json:"fields,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

type statusCoder interface {
	error
	StatusCode() int
}

type fielder interface {
	FieldList() []string
}

type publicMessager interface {
	PublicMessage() string
}

// FromError writes a typed service error with its own status code. Anything
// else becomes a 500 with fallback as the message, so internals never leak.
func FromError(c *gin.Context, err error, fallback string) {
	var se statusCoder
	if !errors.As(err, &se) {
		Internal(c, fallback)
		return
	}
	code := se.StatusCode()
	if code >= http.StatusInternalServerError {
		Internal(c, fallback)
		return
	}
	body := Body{Success: false, Error: se.Error()}
	if p, ok := se.(publicMessager); ok {
		body.Error = p.PublicMessage()
	}
	if f, ok := se.(fielder); ok {
		body.Fields = f.FieldList()
	}
	c.JSON(code, body)
}
