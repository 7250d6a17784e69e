package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
)

type addItemBody struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":"`+id+`","quantity":2}`))
	var body addItemBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, id, body.ProductID)
	assert.Equal(t, 2, body.Quantity)
}

func TestDecodeJSONBodyRejectsUnknownFieldsAndBadValues(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":"x","quantity":1,"extra":true}`))
	var body addItemBody
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":"not-a-uuid","quantity":0}`))
	err = DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid uuid", details["productId"])
	assert.Equal(t, "must be greater than 0", details["quantity"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?days=7&bad=x&big=999", nil)

	v, err := ParseQueryInt(req, "days", 30, 1, 365)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = ParseQueryInt(req, "missing", 30, 1, 365)
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	_, err = ParseQueryInt(req, "bad", 30, 1, 365)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(req, "big", 30, 1, 365)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/?strict=true&odd=maybe", nil)

	v, err := ParseQueryBool(req, "strict")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(req, "absent")
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseQueryBool(req, "odd")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUIDParam(" "+id.String()+" ", "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam("nope", "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abc", SanitizeString("abc", 0))
	assert.Equal(t, "crème", SanitizeString("crème brûlée", 5))
	assert.Equal(t, "honey", SanitizeString("honey jar", 6))
}

func TestDecodeJSONBodyRejectsMalformedEnvelopes(t *testing.T) {
	id := uuid.NewString()
	cases := map[string]string{
		"empty":         ``,
		"trailing data": `{"productId":"` + id + `","quantity":1}{"x":1}`,
		"array":         `[1,2]`,
		"too large":     `{"productId":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var body addItemBody
			err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(raw)), &body)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}
