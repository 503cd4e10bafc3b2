package provisioning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-provisioning"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		region   string
		expected string
		wantErr  bool
	}{
		{name: "empty", raw: "  ", region: "UA", expected: ""},
		{name: "national format", raw: "050 123 4567", region: "UA", expected: "+380501234567"},
		{name: "international format", raw: "+380 50 123 45 67", region: "UA", expected: "+380501234567"},
		{name: "other region", raw: "+1 650 253 0000", region: "UA", expected: "+16502530000"},
		{name: "too short", raw: "12", region: "UA", wantErr: true},
		{name: "letters", raw: "call me", region: "UA", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := provisioning.NormalizePhone(tt.raw, tt.region)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
