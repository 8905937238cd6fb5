// Package reassemble turns the unordered strings recovered from one scanned
// image back into the serialized payload they were cut from.
//
// Reassembly runs as a short state machine:
//
//	Parsing → Grouping → Validating → Concatenated | Failed
//
// Scanning happens before, in a single call of the scan capability; the
// reassembler only ever reads the strings it is handed.
package reassemble

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/i5heu/qrtile/pkg/model"
)

// DefaultMaxTotal bounds the total_chunks a fragment may declare.
const DefaultMaxTotal = 1 << 16

// State is a step of the reassembly state machine.
type State int

const (
	StateScanning State = iota
	StateParsing
	StateGrouping
	StateValidating
	StateConcatenated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateParsing:
		return "parsing"
	case StateGrouping:
		return "grouping"
	case StateValidating:
		return "validating"
	case StateConcatenated:
		return "concatenated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNoFragments is returned when the scan produced no strings at all.
	ErrNoFragments = errors.New("reassemble: no QR codes found")
	// ErrUnparseable is returned when strings were scanned but none of them is
	// a fragment.
	ErrUnparseable   = errors.New("reassemble: no scanned code is a valid fragment")
	ErrTotalTooLarge = errors.New("reassemble: total_chunks exceeds limit")
)

// AmbiguousMessageError is returned when fragments of more than one message
// were found in one image.
type AmbiguousMessageError struct {
	MessageIDs []string
}

func (e *AmbiguousMessageError) Error() string {
	return fmt.Sprintf("reassemble: image holds fragments of %d messages: %s", len(e.MessageIDs), strings.Join(e.MessageIDs, ", "))
}

// IncompleteMessageError is returned when the fragment set of a message does
// not cover every index exactly once.
type IncompleteMessageError struct {
	MessageID string
	// Total is the agreed total_chunks, or 0 when fragments disagree.
	Total int
	// Missing lists indices with no fragment.
	Missing []int
	// Duplicates lists indices carried by fragments with different data.
	Duplicates []int
	// ConflictingTotals lists the distinct total_chunks values seen when
	// fragments disagree on the total.
	ConflictingTotals []int
}

func (e *IncompleteMessageError) Error() string {
	var parts []string
	if len(e.ConflictingTotals) > 0 {
		parts = append(parts, fmt.Sprintf("fragments disagree on total_chunks %v", e.ConflictingTotals))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing chunks %v", e.Missing))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("conflicting duplicate chunks %v", e.Duplicates))
	}
	return fmt.Sprintf("reassemble: incomplete message %s: %s", e.MessageID, strings.Join(parts, ", "))
}

// ParseFailure records a scanned string that is not a fragment.
type ParseFailure struct {
	// Position is the index of the string in the scan result.
	Position int
	Err      error
}

// Report describes one reassembly run. It is filled in as far as the run got,
// also when it fails.
type Report struct {
	State State
	// FailedAt is the state that failed; only meaningful when State is
	// StateFailed.
	FailedAt State

	MessageID string
	Total     int
	Payload   string

	Scanned       int
	ParseFailures []ParseFailure
	// Collapsed counts identical fragments reported more than once by the
	// scanner.
	Collapsed int
}

// Options tune a Reassembler.
type Options struct {
	// MaxTotal is the largest total_chunks accepted; fragments declaring more
	// are recorded as parse failures. Zero means DefaultMaxTotal.
	MaxTotal int
}

// Reassembler validates and concatenates scanned fragments. It holds no state
// between runs and is safe for concurrent use.
type Reassembler struct {
	maxTotal int
}

// New returns a Reassembler.
func New(opts Options) *Reassembler {
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = DefaultMaxTotal
	}
	return &Reassembler{maxTotal: opts.MaxTotal}
}

// Reassemble is New(Options{}).Reassemble(raw).
func Reassemble(raw []string) (Report, error) {
	return New(Options{}).Reassemble(raw)
}

type run struct {
	r         *Reassembler
	raw       []string
	report    Report
	fragments []model.Fragment
}

// Reassemble runs the state machine over the strings of one scan.
func (r *Reassembler) Reassemble(raw []string) (Report, error) { // A
	m := &run{r: r, raw: raw, report: Report{State: StateScanning, Scanned: len(raw)}}

	steps := []struct {
		state State
		fn    func() error
	}{
		{StateParsing, m.parse},
		{StateGrouping, m.group},
		{StateValidating, m.validate},
		{StateConcatenated, m.concatenate},
	}
	for _, step := range steps {
		m.report.State = step.state
		if err := step.fn(); err != nil {
			m.report.FailedAt = step.state
			m.report.State = StateFailed
			return m.report, err
		}
	}
	return m.report, nil
}

func (m *run) parse() error {
	if len(m.raw) == 0 {
		return ErrNoFragments
	}
	m.fragments = make([]model.Fragment, 0, len(m.raw))
	for i, s := range m.raw {
		f, err := model.ParseFragment(s)
		if err == nil && f.Total > m.r.maxTotal {
			err = fmt.Errorf("%w: %d > %d", ErrTotalTooLarge, f.Total, m.r.maxTotal)
		}
		if err != nil {
			m.report.ParseFailures = append(m.report.ParseFailures, ParseFailure{Position: i, Err: err})
			continue
		}
		m.fragments = append(m.fragments, f)
	}
	if len(m.fragments) == 0 {
		return fmt.Errorf("%w: %d codes scanned", ErrUnparseable, len(m.raw))
	}
	return nil
}

func (m *run) group() error {
	ids := make(map[string]struct{})
	for _, f := range m.fragments {
		ids[f.MessageID] = struct{}{}
	}
	if len(ids) > 1 {
		found := make([]string, 0, len(ids))
		for id := range ids {
			found = append(found, id)
		}
		sort.Strings(found)
		return &AmbiguousMessageError{MessageIDs: found}
	}
	m.report.MessageID = m.fragments[0].MessageID
	return nil
}

func (m *run) validate() error { // A
	totals := make(map[int]struct{})
	for _, f := range m.fragments {
		totals[f.Total] = struct{}{}
	}
	if len(totals) > 1 {
		conflicting := make([]int, 0, len(totals))
		for total := range totals {
			conflicting = append(conflicting, total)
		}
		sort.Ints(conflicting)
		return &IncompleteMessageError{MessageID: m.report.MessageID, ConflictingTotals: conflicting}
	}

	total := m.fragments[0].Total
	byIndex := make(map[int]model.Fragment, total)
	conflicts := make(map[int]struct{})
	for _, f := range m.fragments {
		prev, seen := byIndex[f.Index]
		switch {
		case !seen:
			byIndex[f.Index] = f
		case prev.Data == f.Data:
			m.report.Collapsed++
		default:
			conflicts[f.Index] = struct{}{}
		}
	}

	var missing []int
	for i := 0; i < total; i++ {
		if _, ok := byIndex[i]; !ok {
			missing = append(missing, i)
		}
	}
	var duplicates []int
	for i := range conflicts {
		duplicates = append(duplicates, i)
	}
	sort.Ints(duplicates)

	if len(missing) > 0 || len(duplicates) > 0 {
		return &IncompleteMessageError{
			MessageID:  m.report.MessageID,
			Total:      total,
			Missing:    missing,
			Duplicates: duplicates,
		}
	}

	ordered := make([]model.Fragment, total)
	for i := range ordered {
		ordered[i] = byIndex[i]
	}
	m.fragments = ordered
	m.report.Total = total
	return nil
}

func (m *run) concatenate() error {
	size := 0
	for _, f := range m.fragments {
		size += len(f.Data)
	}
	var sb strings.Builder
	sb.Grow(size)
	for _, f := range m.fragments {
		sb.WriteString(f.Data)
	}
	m.report.Payload = sb.String()
	return nil
}
