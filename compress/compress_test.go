package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	for _, algo := range []Algorithm{None, Gzip, Deflate, Brotli} {
		t.Run(algo.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := algo.Writer(&buf)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := algo.Reader(&buf)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			require.Equal(t, payload, got)
		})
	}
}

func TestParse(t *testing.T) {
	require.Equal(t, Gzip, Parse("gzip"))
	require.Equal(t, Deflate, Parse("deflate"))
	require.Equal(t, Brotli, Parse("br"))
	require.Equal(t, None, Parse("identity"))
	require.Equal(t, None, Parse(""))
}
