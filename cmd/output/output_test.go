package output

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Kind     string `json:"kind" yaml:"kind"`
	Enqueued int    `json:"enqueued" yaml:"enqueued"`
}

func TestWrite(t *testing.T) {
	t.Parallel()
	rows := []row{{Kind: "sales_open", Enqueued: 3}, {Kind: "reminder_24h", Enqueued: 12}}
	table := func(tw io.Writer) {
		fmt.Fprintln(tw, "KIND\tENQUEUED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%d\n", r.Kind, r.Enqueued)
		}
	}

	tests := []struct {
		format string
		want   string
	}{
		{FormatTable, "KIND          ENQUEUED\nsales_open    3\nreminder_24h  12\n"},
		{FormatJSON, "[\n  {\n    \"kind\": \"sales_open\",\n    \"enqueued\": 3\n  },\n  {\n    \"kind\": \"reminder_24h\",\n    \"enqueued\": 12\n  }\n]\n"},
		{FormatYAML, "- kind: sales_open\n  enqueued: 3\n- kind: reminder_24h\n  enqueued: 12\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, tt.format, rows, table))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(FormatYAML))
	err := Write(io.Discard, "xml", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}
