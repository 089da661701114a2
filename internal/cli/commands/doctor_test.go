package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name   string
		checks []HealthCheck
		want   int
	}{
		{name: "no checks returns 100", checks: nil, want: 100},
		{
			name: "all passing returns 100",
			checks: []HealthCheck{
				{Name: "Config file", Status: statusPass},
				{Name: "Macro library", Status: statusPass},
			},
			want: 100,
		},
		{
			name:   "warnings reduce score",
			checks: []HealthCheck{{Status: statusPass}, {Status: statusWarn}, {Status: statusWarn}},
			want:   80,
		},
		{
			name:   "errors reduce score more",
			checks: []HealthCheck{{Status: statusError}, {Status: statusWarn}},
			want:   65,
		},
		{
			name:   "never below zero",
			checks: []HealthCheck{{Status: statusError}, {Status: statusError}, {Status: statusError}, {Status: statusError}, {Status: statusError}},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateHealthScore(tt.checks))
		})
	}
}

func TestBuildDoctorOutput(t *testing.T) {
	out := buildDoctorOutput([]HealthCheck{
		{Name: "Config file", Group: "configuration", Status: statusWarn},
		{Name: "Connection", Group: "database", Status: statusError, Detail: "refused"},
	})
	assert.Equal(t, 2, out.IssueCount)
	assert.Equal(t, 65, out.Score)
}

func TestRenderDoctorText(t *testing.T) {
	out := buildDoctorOutput([]HealthCheck{
		{Name: "Config file", Group: "configuration", Status: statusPass, Detail: "sqlext.yaml"},
		{Name: "Macro library", Group: "macros", Status: statusWarn, Detail: "0 entries"},
		{Name: "Connection", Group: "database", Status: statusError, Detail: "refused"},
	})

	var buf bytes.Buffer
	renderDoctorText(&buf, out)
	text := buf.String()

	assert.Contains(t, text, "Configuration")
	assert.Contains(t, text, "✓ Config file: sqlext.yaml")
	assert.Contains(t, text, "! Macro library: 0 entries")
	assert.Contains(t, text, "✗ Connection: refused")
	assert.Contains(t, text, "Health Score: 65/100")
}
