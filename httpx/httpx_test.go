package httpx

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRequestContentLength(t *testing.T) {
	headers := NewHeaders()
	headers.Set("Host", "example.com")
	headers.Add("X-Trace", "a")
	headers.Add("X-Trace", "b")

	req := &Request{
		Method:        MethodPost,
		Path:          "/items",
		Headers:       headers,
		Body:          strings.NewReader("hello world"),
		ContentLength: int64(len("hello world")),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, MethodPost, got.Method)
	require.Equal(t, "/items", got.Path)
	require.Equal(t, "example.com", got.Headers.Get("Host"))
	require.Equal(t, []string{"a", "b"}, got.Headers.Values("X-Trace"))

	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
}

func TestWriteReadRequestChunked(t *testing.T) {
	req := &Request{
		Method:  MethodPut,
		Path:    "/stream",
		Headers: NewHeaders(),
		Body:    strings.NewReader(strings.Repeat("chunk-me ", 500)),
		Chunked: true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, req))
	require.Contains(t, buf.String(), "Transfer-Encoding: chunked\r\n")

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.True(t, got.Chunked)

	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("chunk-me ", 500), string(body))
}

func TestWriteReadResponse(t *testing.T) {
	resp := &Response{
		StatusCode:    404,
		Headers:       NewHeaders(),
		Body:          strings.NewReader("not found"),
		ContentLength: int64(len("not found")),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))
	require.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 404 Not Found\r\n"))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	require.Equal(t, 404, got.StatusCode)

	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	require.Equal(t, "not found", string(body))
}

func TestHeaderFoldingRejected(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\n continuation\r\n\r\n"
	_, err := ReadRequest(strings.NewReader(raw))
	require.ErrorIs(t, err, ErrHeaderFolding)
}

func TestUnsupportedVersionRejected(t *testing.T) {
	raw := "GET / HTTP/1.0\r\n\r\n"
	_, err := ReadRequest(strings.NewReader(raw))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestUnsupportedMethodRejected(t *testing.T) {
	raw := "FETCH / HTTP/1.1\r\n\r\n"
	_, err := ReadRequest(strings.NewReader(raw))
	require.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestHeadersDeterministicOrder(t *testing.T) {
	h := NewHeaders()
	h.Set("Zebra", "1")
	h.Set("Apple", "2")
	h.Set("Mango", "3")

	var names []string
	h.Range(func(name, _ string) { names = append(names, name) })
	require.Equal(t, []string{"apple", "mango", "zebra"}, names)
}
