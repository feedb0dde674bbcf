package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddServiceRequest(t *testing.T) {
	v := New()

	ok := AddServiceRequest{ID: "1", Title: "Masaje", Price: decimal.NewFromInt(40000)}
	require.NoError(t, v.Struct(ok))

	negative := ok
	negative.Price = decimal.NewFromInt(-1)
	assert.Error(t, v.Struct(negative))

	missing := AddServiceRequest{Price: decimal.NewFromInt(1)}
	assert.Error(t, v.Struct(missing))
}

func TestAddProductRequestWithinStock(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(AddProductRequest{ID: "p1", Name: "Crema", Price: decimal.NewFromInt(10), Quantity: 3, Stock: 3}))
	require.NoError(t, v.Struct(AddProductRequest{ID: "p1", Name: "Crema", Price: decimal.NewFromInt(10), Stock: 1}))

	err := v.Struct(AddProductRequest{ID: "p1", Name: "Crema", Price: decimal.NewFromInt(10), Quantity: 4, Stock: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "within_stock")

	assert.Error(t, v.Struct(AddProductRequest{ID: "p1", Name: "Crema", Price: decimal.NewFromInt(10), Stock: 0}))
}

func TestSetQuantityRequest(t *testing.T) {
	v := New()
	zero, neg := 0, -1

	assert.NoError(t, v.Struct(SetQuantityRequest{Quantity: &zero}))
	assert.Error(t, v.Struct(SetQuantityRequest{Quantity: &neg}))
	assert.Error(t, v.Struct(SetQuantityRequest{}))
}

func TestUpdateFormRequest(t *testing.T) {
	v := New()
	at := time.Now().Add(72 * time.Hour)

	assert.NoError(t, v.Struct(UpdateFormRequest{AppointmentDatetime: &at}))
	assert.Error(t, v.Struct(UpdateFormRequest{AppointmentDatetime: &at, ClearAppointment: true}))
	assert.Error(t, v.Struct(SelectTabRequest{Tab: "gift"}))
}

func TestBindAndValidateWritesStructuredErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"1","title":"x","price":"-5"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req AddServiceRequest
	require.Error(t, BindAndValidate(c, &req, v))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	assert.Contains(t, w.Body.String(), "decimal_nonneg")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
	require.Error(t, BindAndValidate(c, &req, v))
	assert.Contains(t, w.Body.String(), "malformed request body")
}
