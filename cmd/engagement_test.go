package cmd

import (
	"testing"

	"github.com/naka-gawa/pr-engagement/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		base     func() *config.Config
		expected func(c *config.Config)
	}{
		{
			name: "explicit flags override file values",
			args: []string{"--org", "acme", "-r", "widgets", "-t", "14", "-e", "2", "-w", "1.5", "-s", "0.4", "-d", "--output", "json", "--batch-size", "8"},
			base: config.DefaultConfig,
			expected: func(c *config.Config) {
				c.Organization, c.Repository = "acme", "widgets"
				c.Days, c.EndDays = 14, 2
				c.BreadthWeight, c.DepthDiminishingFactor = 1.5, 0.4
				c.Detailed = true
				c.Output = config.OutputJSON
				c.BatchSize = 8
			},
		},
		{
			name: "unset flags keep file values",
			args: []string{"--org", "acme"},
			base: func() *config.Config {
				c := config.DefaultConfig()
				c.Repository = "from-file"
				c.BreadthWeight = 2
				return c
			},
			expected: func(c *config.Config) {
				c.Organization = "acme"
				c.Repository = "from-file"
				c.BreadthWeight = 2
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			registerEngagementFlags(flags)
			require.NoError(t, flags.Parse(tc.args))

			cfg := tc.base()
			require.NoError(t, applyFlags(flags, cfg))

			want := config.DefaultConfig()
			tc.expected(want)
			assert.Equal(t, want, cfg)
		})
	}
}
