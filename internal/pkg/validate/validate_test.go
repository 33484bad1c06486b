package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type mobileBody struct {
	Mobile string `validate:"required,mobile"`
}

func TestStruct_Mobile(t *testing.T) {
	assert.NoError(t, Struct(mobileBody{Mobile: "+14155552671"}))

	err := Struct(mobileBody{Mobile: "12345"})
	assert.ErrorContains(t, err, "failed 'mobile'")

	err = Struct(mobileBody{})
	assert.ErrorContains(t, err, "failed 'required'")
}

type tableBody struct {
	Name string `validate:"sqlident"`
}

func TestStruct_SQLIdent(t *testing.T) {
	for _, ok := range []string{"otp_requests", "_calls", "Calls2"} {
		assert.NoError(t, Struct(tableBody{Name: ok}), ok)
	}
	for _, bad := range []string{"", "1calls", "otp-requests", "otp requests", "otp;DROP TABLE x", `"quoted"`} {
		assert.ErrorContains(t, Struct(tableBody{Name: bad}), "failed 'sqlident'", bad)
	}
}
