// Package chunker splits a serialized payload into fixed-size fragments that
// all share one freshly generated message id.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	chunk "github.com/ipfs/boxo/chunker"

	"github.com/i5heu/qrtile/pkg/model"
)

var (
	ErrInvalidChunkSize = errors.New("chunker: chunk size must be positive")
	ErrEmptyPayload     = errors.New("chunker: empty payload")
	ErrNonASCII         = errors.New("chunker: payload is not printable ascii")
)

// NewMessageID returns a fresh random message id: a version 4 UUID written as
// 32 lowercase hex digits.
func NewMessageID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("chunker: generate message id: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// Split cuts payload into ceil(len(payload)/chunkSize) fragments under a new
// message id. Only the last fragment may be shorter than chunkSize.
func Split(payload string, chunkSize int) ([]model.Fragment, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	id, err := NewMessageID()
	if err != nil {
		return nil, err
	}
	return SplitWithID(payload, chunkSize, id)
}

// SplitWithID is Split with a caller supplied message id.
func SplitWithID(payload string, chunkSize int, messageID string) ([]model.Fragment, error) { // A
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	if err := model.ValidateMessageID(messageID); err != nil {
		return nil, err
	}
	if !isPrintableASCII(payload) {
		return nil, ErrNonASCII
	}

	total := EstimateChunks(len(payload), chunkSize)
	fragments := make([]model.Fragment, 0, total)

	splitter := chunk.NewSizeSplitter(strings.NewReader(payload), int64(chunkSize))
	for index := 0; ; index++ {
		data, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunker: read chunk %d: %w", index, err)
		}
		fragments = append(fragments, model.Fragment{
			MessageID: messageID,
			Index:     index,
			Total:     total,
			Data:      string(data),
		})
	}

	if len(fragments) != total {
		return nil, fmt.Errorf("chunker: produced %d fragments, expected %d", len(fragments), total)
	}
	return fragments, nil
}

// EstimateChunks predicts the number of fragments Split produces for a payload
// of payloadLen bytes. It returns 0 for a non-positive chunk size.
func EstimateChunks(payloadLen, chunkSize int) int {
	if chunkSize <= 0 || payloadLen <= 0 {
		return 0
	}
	return (payloadLen + chunkSize - 1) / chunkSize
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
