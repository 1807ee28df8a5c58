package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adlake/adlake/pkg/config"
)

func TestResolveMode_Precedence(t *testing.T) {
	// Historical configuration files set several mode keys
	// redundantly; the resolution order must hold exactly.
	tests := []struct {
		name string
		cfg  config.TableConfig
		want Mode
	}{
		{
			name: "no keys defaults to append",
			cfg:  config.TableConfig{},
			want: ModeAppend,
		},
		{
			name: "explicit primary key still appends",
			cfg:  config.TableConfig{PrimaryKey: []string{"campaign_id"}},
			want: ModeAppend,
		},
		{
			name: "upsert",
			cfg:  config.TableConfig{Upsert: true, PrimaryKey: []string{"campaign_id"}},
			want: ModeUpsert,
		},
		{
			name: "legacy update alias maps to upsert",
			cfg:  config.TableConfig{Update: true, PrimaryKey: []string{"campaign_id"}},
			want: ModeUpsert,
		},
		{
			name: "legacy merge alias maps to upsert",
			cfg:  config.TableConfig{Merge: true, PrimaryKey: []string{"campaign_id"}},
			want: ModeUpsert,
		},
		{
			name: "replace",
			cfg:  config.TableConfig{Replace: true},
			want: ModeReplace,
		},
		{
			name: "replace beats legacy aliases",
			cfg:  config.TableConfig{Replace: true, Update: true, Merge: true},
			want: ModeReplace,
		},
		{
			name: "upsert beats replace",
			cfg:  config.TableConfig{Upsert: true, Replace: true, PrimaryKey: []string{"id"}},
			want: ModeUpsert,
		},
		{
			name: "increment beats everything",
			cfg: config.TableConfig{
				IncrementKey:     []string{"ad_id"},
				IncrementColumns: []string{"impressions"},
				Upsert:           true,
				Replace:          true,
				Update:           true,
			},
			want: ModeIncrement,
		},
		{
			name: "retention config alone selects delete",
			cfg:  config.TableConfig{DeleteColumn: "date", RetentionDays: 90},
			want: ModeDelete,
		},
		{
			name: "replace beats delete",
			cfg:  config.TableConfig{Replace: true, DeleteColumn: "date", RetentionDays: 90},
			want: ModeReplace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMode(tt.cfg))
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "append", ModeAppend.String())
	assert.Equal(t, "upsert", ModeUpsert.String())
	assert.Equal(t, "increment", ModeIncrement.String())
	assert.Equal(t, "replace", ModeReplace.String())
	assert.Equal(t, "delete", ModeDelete.String())
}
