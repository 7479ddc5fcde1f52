package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type registrationPayload struct {
	Email       string `json:"email" validate:"required,email"`
	UserID      string `json:"userid" validate:"required,userid"`
	DisplayName string `json:"display_name" validate:"required"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := registrationPayload{
		Email:       "alice@example.com",
		UserID:      "alice",
		DisplayName: "Alice",
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(registrationPayload{Email: "invalid", UserID: "a"})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "email", fields["email"])
	require.Equal(t, "userid", fields["userid"])
	require.Equal(t, "required", fields["display_name"])
}

func TestIsUserID(t *testing.T) {
	require.True(t, IsUserID("abc"))
	require.True(t, IsUserID("Alice_01"))
	require.True(t, IsUserID("a-b-c-d-e-f-g-h-i-j-k-l-m-n-o0"))
	require.False(t, IsUserID("ab"))
	require.False(t, IsUserID("a-b-c-d-e-f-g-h-i-j-k-l-m-n-o01"))
	require.False(t, IsUserID("bad name"))
	require.False(t, IsUserID("émile"))
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("workspace_kind", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "personal" || value == "shared"
	})
	require.NoError(t, err)

	type custom struct {
		Kind string `validate:"workspace_kind"`
	}

	require.NoError(t, ValidateStruct(custom{Kind: "shared"}))
	require.Error(t, ValidateStruct(custom{Kind: "team"}))
}
