package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aurum/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConnectorInput struct {
	SourceType string `json:"source_type" binding:"required,oneof=woocommerce"`
	BaseURL    string `json:"base_url" binding:"required,url"`
	Name       string `json:"name" binding:"max=5"`
}

func TestHandleValidationError_ReportsJSONFieldNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.POST("/connectors", func(c *gin.Context) {
		var in testConnectorInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	body := strings.NewReader(`{"source_type":"shopify","base_url":"not a url","name":"too long"}`)
	req := httptest.NewRequest(http.MethodPost, "/connectors", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-42", resp.Error.RequestID)
	assert.ElementsMatch(t, []dto.ValidationDetail{
		{Field: "source_type", Message: "Must be one of: woocommerce"},
		{Field: "base_url", Message: "Invalid URL format"},
		{Field: "name", Message: "Must be at most 5 characters"},
	}, resp.Error.Details)
}

func TestGetValidationMessage(t *testing.T) {
	type input struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		MinInt   int    `validate:"min=1"`
		UUID     string `validate:"uuid"`
		Doc      string `validate:"json"`
		GTE      int    `validate:"gte=10"`
	}

	err := validator.New().Struct(input{Min: "ab", UUID: "x", Doc: "{", GTE: 1})
	var errs validator.ValidationErrors
	require.True(t, errors.As(err, &errs))

	got := map[string]string{}
	for _, e := range errs {
		got[e.Field()] = getValidationMessage(e)
	}
	assert.Equal(t, map[string]string{
		"Required": "This field is required",
		"Min":      "Must be at least 5 characters",
		"MinInt":   "Must be at least 1",
		"UUID":     "Invalid UUID format",
		"Doc":      "Must be a valid JSON document",
		"GTE":      "Must be greater than or equal to 10",
	}, got)
}

func TestIsValidationError(t *testing.T) {
	err := validator.New().Struct(struct {
		A string `validate:"required"`
	}{})
	assert.True(t, IsValidationError(err))
	assert.True(t, IsValidationError(errors.Join(errors.New("bind"), err)))
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
}
