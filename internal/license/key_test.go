package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"TEST-1234-ABCD-5678", "TEST-1234-ABCD-5678", false},
		{"  test-1234-abcd-5678 ", "TEST-1234-ABCD-5678", false},
		{"TEST- 1234-AB CD-5678", "TEST-1234-ABCD-5678", false},
		{"TEST1234ABCD5678", "", true},
		{"TEST-1234-ABCD", "", true},
		{"TEST-1234-ABCD-567!", "", true},
		{"TEST-12345-ABCD-5678", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKey(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidLicenseKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "TEST-****-****-5678", MaskKey("TEST-1234-ABCD-5678"))
	assert.Equal(t, "abcd****mnop", MaskKey("abcdefghijklmnop"))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "****", MaskKey(""))
}
