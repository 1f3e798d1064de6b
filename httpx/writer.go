package httpx

import (
	"fmt"
	"io"
	"strconv"
)

// WriteRequest serializes req to w: request line, headers (in Headers'
// deterministic order), blank line, then the body framed per
// req.Chunked/req.ContentLength.
func WriteRequest(w io.Writer, req *Request) error {
	if !validMethod(req.Method) {
		return ErrUnsupportedMethod
	}
	if _, err := fmt.Fprintf(w, "%s %s %s\r\n", req.Method, req.Path, Version); err != nil {
		return err
	}
	return writeHeadersAndBody(w, req.Headers, req.Body, req.ContentLength, req.Chunked)
}

// WriteResponse serializes resp to w: status line, headers, blank line,
// then the body framed per resp.Chunked/resp.ContentLength.
func WriteResponse(w io.Writer, resp *Response) error {
	reason := resp.Reason
	if reason == "" {
		reason = StatusText(resp.StatusCode)
	}
	if _, err := fmt.Fprintf(w, "%s %03d %s\r\n", Version, resp.StatusCode, reason); err != nil {
		return err
	}
	return writeHeadersAndBody(w, resp.Headers, resp.Body, resp.ContentLength, resp.Chunked)
}

func writeHeadersAndBody(w io.Writer, headers *Headers, body io.Reader, contentLength int64, chunked bool) error {
	if headers == nil {
		headers = NewHeaders()
	}
	switch bodyTransfer(contentLength, chunked) {
	case TransferChunked:
		headers.Set("Transfer-Encoding", "chunked")
		headers.Del("Content-Length")
	case TransferContentLength:
		headers.Set("Content-Length", strconv.FormatInt(contentLength, 10))
		headers.Del("Transfer-Encoding")
	}

	var writeErr error
	headers.Range(func(name, value string) {
		if writeErr != nil {
			return
		}
		_, writeErr = fmt.Fprintf(w, "%s: %s\r\n", name, value)
	})
	if writeErr != nil {
		return writeErr
	}
	if _, err := w.Write(crlf); err != nil {
		return err
	}

	if body == nil {
		return nil
	}
	if chunked {
		cw := newChunkedWriter(w)
		if _, err := io.Copy(cw, body); err != nil {
			return err
		}
		return cw.Close()
	}
	_, err := io.CopyN(w, body, contentLength)
	if err == io.EOF {
		return nil
	}
	return err
}
