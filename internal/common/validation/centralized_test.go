package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"traffic-router/internal/common/errors"
)

type sample struct {
	ID       string   `json:"id" validate:"required"`
	Status   int      `json:"status" validate:"redirect_status"`
	Country  string   `json:"country" validate:"omitempty,country_code"`
	Networks []string `json:"networks" validate:"dive,ip_or_cidr"`
	Schedule string   `json:"schedule" validate:"omitempty,cron_expression"`
}

func TestValidateStruct(t *testing.T) {
	v := NewCentralizedValidator()

	t.Run("valid", func(t *testing.T) {
		err := v.ValidateStruct(sample{
			ID:       "r1",
			Status:   302,
			Country:  "ru",
			Networks: []string{"10.0.0.1", "192.168.0.0/16", "::1"},
			Schedule: "0 3 * * *",
		})
		assert.NoError(t, err)
	})

	t.Run("zero status means default", func(t *testing.T) {
		assert.NoError(t, v.ValidateStruct(sample{ID: "r1"}))
	})

	t.Run("reports json field names", func(t *testing.T) {
		err := v.ValidateStruct(sample{Status: 200})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		assert.Contains(t, err.Error(), "field 'id' is required")
		assert.Contains(t, err.Error(), "field 'status' must be a redirect status")
	})

	t.Run("bad country and network", func(t *testing.T) {
		fields := v.Fields(sample{ID: "r1", Country: "RUS", Networks: []string{"not-an-ip"}})
		require.Len(t, fields, 2)
		assert.Equal(t, "country", fields[0].Field)
		assert.Equal(t, "country_code", fields[0].Tag)
		assert.Equal(t, "networks[0]", fields[1].Field)
		assert.Equal(t, "ip_or_cidr", fields[1].Tag)
	})

	t.Run("bad cron", func(t *testing.T) {
		err := v.ValidateStruct(sample{ID: "r1", Schedule: "every day"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cron expression")
	})
}

func TestValidateVar(t *testing.T) {
	v := NewCentralizedValidator()
	assert.NoError(t, v.ValidateVar("DE", "country_code"))
	assert.Error(t, v.ValidateVar("D1", "country_code"))
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.Error(t, ValidateStruct(sample{}))
}
