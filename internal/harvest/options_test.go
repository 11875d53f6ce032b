package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, DefaultThreadCount, opts.ThreadCount)
	assert.True(t, opts.StoreCSV)
	assert.True(t, opts.StoreDB)
	assert.False(t, opts.Overdrive)
	assert.False(t, opts.Compress)
	assert.Empty(t, opts.Regions)
	assert.Empty(t, opts.OperatingSystems)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(o *Options) {},
		},
		{
			name:   "zero threads pass, resolved later",
			mutate: func(o *Options) { o.ThreadCount = 0 },
		},
		{
			name:    "negative threads rejected",
			mutate:  func(o *Options) { o.ThreadCount = -2 },
			wantErr: "thread count -2 is negative",
		},
		{
			name:    "empty region entry rejected",
			mutate:  func(o *Options) { o.Regions = []string{"us-east-1", "  "} },
			wantErr: "empty region",
		},
		{
			name:    "empty operating system entry rejected",
			mutate:  func(o *Options) { o.OperatingSystems = []string{""} },
			wantErr: "empty operating system",
		},
		{
			name: "populated allow-lists pass",
			mutate: func(o *Options) {
				o.Regions = []string{"eu-west-1"}
				o.OperatingSystems = []string{"Linux"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOptionsArgv(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults render threads only",
			opts: DefaultOptions(),
			want: []string{"--threads", "4"},
		},
		{
			name: "everything on",
			opts: Options{
				ThreadCount:      12,
				Overdrive:        true,
				Compress:         true,
				Regions:          []string{"us-east-1", "eu-west-1"},
				OperatingSystems: []string{"Linux"},
				StoreCSV:         true,
				StoreDB:          true,
				CSVDataDir:       "/var/lib/harvester",
			},
			want: []string{
				"--threads", "12",
				"--overdrive-madness",
				"--compress",
				"--regions", "us-east-1,eu-west-1",
				"--operating-systems", "Linux",
				"--csv-data-dir", "/var/lib/harvester",
			},
		},
		{
			name: "disabled sinks render explicit false",
			opts: Options{ThreadCount: 1},
			want: []string{"--threads", "1", "--store-csv=false", "--store-db=false"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.Argv())
		})
	}
}
