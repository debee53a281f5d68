package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const delimiter = '\n'

// EncodeRequest encodes one request message, terminated by a single newline.
func EncodeRequest(id uint64, method string, args Args) ([]byte, error) {
	if method == "" {
		return nil, errors.New("empty method name")
	}
	if args == nil {
		args = Args{}
	}
	b, err := json.Marshal(Request{ID: id, Method: method, Params: []Args{args}})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	return append(b, delimiter), nil
}

// Decoder reads response messages from a stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadResponse reads exactly one newline-terminated response.
// It returns io.EOF if the stream ended before any byte of the line was read,
// and io.ErrUnexpectedEOF if it ended partway through a line.
func (d *Decoder) ReadResponse() (*Response, error) {
	line, err := d.r.ReadBytes(delimiter)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return DecodeResponse(line)
}

// DecodeResponse decodes a single response line.
// Unknown fields are ignored. The id and error fields must be present.
func DecodeResponse(line []byte) (*Response, error) {
	line = bytes.TrimSpace(line)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, &DecodeError{Line: line, Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Line: line, Err: errors.New("response is not an object")}
	}

	rawID, ok := fields["id"]
	if !ok || isNull(rawID) {
		return nil, &DecodeError{Line: line, Err: errors.New("missing id")}
	}
	var id uint64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, &DecodeError{Line: line, Err: fmt.Errorf("invalid id %s: %w", rawID, err)}
	}

	rawErr, ok := fields["error"]
	if !ok {
		return nil, &DecodeError{Line: line, Err: errors.New("missing error")}
	}

	result := fields["result"]
	if len(result) == 0 {
		result = null
	}

	return &Response{ID: id, Result: result, Error: rawErr}, nil
}
