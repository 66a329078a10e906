package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/dbboot/internal/version"
)

func TestCheckEngineVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reported string
		rng      string
		want     version.Version
		wantErr  bool
	}{
		{reported: "14.0.0", rng: ">=14.0.0", want: version.New(14, 0, 0)},
		{reported: "16.2 (Debian 16.2-1.pgdg120+2)", rng: ">=14.0.0", want: version.New(16, 2, 0)},
		{reported: "15", rng: ">=14.0.0 <17", want: version.New(15, 0, 0)},
		{reported: "13.10.0", rng: ">=14.0.0", wantErr: true},
		{reported: "17.0", rng: ">=14.0.0 <17", wantErr: true},
		{reported: "not a version", rng: ">=14.0.0", wantErr: true},
		{reported: "", rng: ">=14.0.0", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.reported+"/"+tc.rng, func(t *testing.T) {
			t.Parallel()

			got, err := CheckEngineVersion(tc.reported, version.MustParseRange(tc.rng))
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedEngineVersion)
			assert.Contains(t, err.Error(), "Found "+tc.reported+",")
			assert.Contains(t, err.Error(), "needed "+tc.rng+".")

			var be *Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, StateVersionChecked, be.Phase)
		})
	}
}

func TestCheckEngineVersion_ExactMessage(t *testing.T) {
	t.Parallel()

	_, err := CheckEngineVersion("13.10.0", version.MustParseRange(">=14.0.0"))
	require.Error(t, err)
	assert.Equal(t,
		"Invalid PostgreSQL version. Found 13.10.0, but needed >=14.0.0. Please use a supported version.",
		err.Error(),
	)
}
