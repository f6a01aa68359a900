package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Result tags of terminal messages.
const (
	ResultSuccess    = "success"
	ResultUploadFail = "uploadFail"
	ResultError      = "error"
	ResultAbort      = "abort"
)

// UploadFailFileID is the file id carried by UploadFail.
const UploadFailFileID = ""

// Message is one of Progress, Success, UploadFail, Failure or Aborted.
type Message interface {
	// Terminal reports whether the message ends the operation.
	Terminal() bool
}

// Progress reports bytes moved so far. The field names are historical and
// apply to downloads as well.
type Progress struct {
	Progress      float64 `json:"progress"`
	UploadedBytes int64   `json:"uploadedBytes"`
	TotalBytes    int64   `json:"totalBytes"`
}

// Success ends an operation that completed.
type Success struct {
	FileID string
}

// UploadFail ends an operation whose retry budget ran out. The caller may
// offer to retry the whole transfer.
type UploadFail struct{}

// Failure ends an operation that failed for any other reason.
type Failure struct {
	Error ErrorPayload
}

// Aborted ends an operation that was aborted by the caller.
type Aborted struct{}

// ErrorPayload is an error flattened to plain data.
type ErrorPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (Progress) Terminal() bool   { return false }
func (Success) Terminal() bool    { return true }
func (UploadFail) Terminal() bool { return true }
func (Failure) Terminal() bool    { return true }
func (Aborted) Terminal() bool    { return true }

type resultMessage struct {
	Result string        `json:"result"`
	FileID *string       `json:"fileId,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// Encode returns the wire form of m.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case Progress:
		return json.Marshal(m)
	case Success:
		return json.Marshal(resultMessage{Result: ResultSuccess, FileID: &m.FileID})
	case UploadFail:
		id := UploadFailFileID
		return json.Marshal(resultMessage{Result: ResultUploadFail, FileID: &id})
	case Failure:
		return json.Marshal(resultMessage{Result: ResultError, Error: &m.Error})
	case Aborted:
		return json.Marshal(resultMessage{Result: ResultAbort})
	default:
		return nil, fmt.Errorf("bridge: unknown message %T", m)
	}
}

// Decode parses the wire form of a message.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Result   *string       `json:"result"`
		FileID   string        `json:"fileId"`
		Error    *ErrorPayload `json:"error"`
		Progress *float64      `json:"progress"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("bridge: decode message: %w", err)
	}

	if probe.Result == nil {
		if probe.Progress == nil {
			return nil, errors.New("bridge: message has neither result nor progress")
		}
		var p Progress
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("bridge: decode progress: %w", err)
		}
		return p, nil
	}

	switch *probe.Result {
	case ResultSuccess:
		return Success{FileID: probe.FileID}, nil
	case ResultUploadFail:
		return UploadFail{}, nil
	case ResultError:
		if probe.Error == nil {
			return Failure{Error: ErrorPayload{Name: "Error"}}, nil
		}
		return Failure{Error: *probe.Error}, nil
	case ResultAbort:
		return Aborted{}, nil
	default:
		return nil, fmt.Errorf("bridge: unknown result %q", *probe.Result)
	}
}
