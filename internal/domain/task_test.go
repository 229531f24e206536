package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		input   string
		want    TaskType
		wantErr bool
	}{
		{input: "ui", want: TaskTypeUI},
		{input: "Frontend", want: TaskTypeUI},
		{input: "api", want: TaskTypeAPI},
		{input: "schema", want: TaskTypeDataSchema},
		{input: "data-schema", want: TaskTypeDataSchema},
		{input: "test", want: TaskTypeTest},
		{input: "ui-integration", want: TaskTypeIntegration},
		{input: " script ", want: TaskTypeScript},
		{input: "docs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTaskType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskValidate(t *testing.T) {
	valid := Task{ID: "login", Title: "Build login form", Type: TaskTypeUI, EstimatedMinutes: 30}
	require.NoError(t, valid.Validate())

	noTitle := valid
	noTitle.Title = "  "
	assert.Error(t, noTitle.Validate())

	badType := valid
	badType.Type = "docs"
	assert.Error(t, badType.Validate())

	negative := valid
	negative.EstimatedMinutes = -5
	assert.Error(t, negative.Validate())

	badID := valid
	badID.ID = "has space"
	assert.Error(t, badID.Validate())
}

func TestTaskText(t *testing.T) {
	assert.Equal(t, "Build form", Task{Title: "Build form"}.Text())
	assert.Equal(t, "Build form with validation", Task{Title: "Build form", Description: "with validation"}.Text())
}
