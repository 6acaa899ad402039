package config_test

import (
	"errors"
	"testing"

	"marketpulse/apps/worker/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		DBHost:      "localhost",
		DBUser:      "user",
		DBName:      "db",
		JobType:          "search",
		LockSeconds:      120,
		MaxAttempts:      6,
		PollSeconds:      5,
		FXSyncHours:      24,
		ListingSyncHours: 6,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errIs   error
	}{
		{
			name:   "Valid Config",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "Missing DBHost",
			mutate:  func(c *config.Config) { c.DBHost = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Missing DBUser",
			mutate:  func(c *config.Config) { c.DBUser = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Missing DBName",
			mutate:  func(c *config.Config) { c.DBName = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Missing JobType",
			mutate:  func(c *config.Config) { c.JobType = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Non-positive LockSeconds",
			mutate:  func(c *config.Config) { c.LockSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "Non-positive MaxAttempts",
			mutate:  func(c *config.Config) { c.MaxAttempts = -1 },
			wantErr: true,
		},
		{
			name:    "Non-positive PollSeconds",
			mutate:  func(c *config.Config) { c.PollSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "Non-positive FXSyncHours",
			mutate:  func(c *config.Config) { c.FXSyncHours = 0 },
			wantErr: true,
		},
		{
			name:    "Non-positive ListingSyncHours",
			mutate:  func(c *config.Config) { c.ListingSyncHours = -1 },
			wantErr: true,
		},
		{
			name: "Denial budget exceeds max attempts",
			mutate: func(c *config.Config) {
				c.MaxAttempts = 3
				c.DenialMaxAttempts = 5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, errors.Is(err, tt.errIs))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
