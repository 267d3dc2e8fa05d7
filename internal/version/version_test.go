package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name       string
		app        string
		db         string
		compatible bool
	}{
		{"identical versions", "0.14.2", "0.14.2", true},
		{"patch difference", "0.14.2", "0.14.0", true},
		{"minor difference", "0.14.2", "0.15.0", false},
		{"major difference", "1.0.0", "0.14.2", false},
		{"dev app always compatible", "dev", "0.14.2", true},
		{"dev db always compatible", "0.14.2", "dev", true},
		{"v prefix tolerated", "v0.14.2", "0.14.9", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCompatibility(tt.app, tt.db)
			if tt.compatible {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
