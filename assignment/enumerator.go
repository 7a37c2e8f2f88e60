package assignment

import (
	"iter"
	"log/slog"
	"slices"

	"github.com/poiesic/placefinder/query"
)

// Reading direction of a sequence.
const (
	dirUnknown     = 0
	dirLeftToRight = 1
	dirRightToLeft = -1
)

// Tuning holds the empirically chosen thresholds of the enumerator.
type Tuning struct {
	// MaxPriors is the number of partial terms allowed on the far side of
	// a housenumber. Exactly MaxPriors terms are penalized, more are rejected.
	MaxPriors int
	// PriorsPenalty is added when MaxPriors terms are found.
	PriorsPenalty float64
	// NearHousenumberPenalty is added when a near item and a housenumber
	// appear in the same sequence.
	NearHousenumberPenalty float64
	// MaxAddressTerms caps the number of terms all address parts may cover.
	MaxAddressTerms int
}

// DefaultTuning returns the standard thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		MaxPriors:              2,
		PriorsPenalty:          0.8,
		NearHousenumberPenalty: 1.0,
		MaxAddressTerms:        50,
	}
}

// Enumerator produces token assignments for query graphs. It holds no
// per-query state and is safe for concurrent use.
type Enumerator struct {
	tuning Tuning
	logger *slog.Logger
}

// Option configures an Enumerator.
type Option func(*Enumerator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enumerator) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "enumerator")
		return nil
	}
}

// WithTuning replaces the default thresholds.
func WithTuning(t Tuning) Option {
	return func(e *Enumerator) error {
		if t.MaxPriors < 1 || t.MaxAddressTerms < 1 {
			return ErrInvalidTuning
		}
		e.tuning = t
		return nil
	}
}

// NewEnumerator creates an enumerator.
func NewEnumerator(opts ...Option) (*Enumerator, error) {
	e := &Enumerator{
		tuning: DefaultTuning(),
		logger: slog.Default().With("component", "enumerator"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// tokenSequence is a state of the enumeration: the typed ranges found so
// far, the inferred direction and the accumulated penalty.
type tokenSequence struct {
	seq       []TypedRange
	direction int
	penalty   float64
}

func (s *tokenSequence) endPos() int {
	if len(s.seq) == 0 {
		return 0
	}
	return s.seq[len(s.seq)-1].Range.End
}

func (s *tokenSequence) hasTypes(types ...query.TokenType) bool {
	for _, tr := range s.seq {
		if slices.Contains(types, tr.Type) {
			return true
		}
	}
	return false
}

// isFinal reports whether no further token may be appended.
func (s *tokenSequence) isFinal() bool {
	if len(s.seq) <= 1 {
		return false
	}
	last := s.seq[len(s.seq)-1].Type
	return last == query.TokenCountry || last == query.TokenNearItem
}

// appendable checks whether a token of the given type may be appended and
// returns the resulting direction.
func (s *tokenSequence) appendable(ttype query.TokenType) (int, bool) {
	if ttype == query.TokenWord {
		return 0, false
	}

	if len(s.seq) == 0 {
		switch ttype {
		case query.TokenCountry:
			return dirRightToLeft, true
		case query.TokenHousenumber, query.TokenQualifier:
			return dirLeftToRight, true
		}
		return s.direction, true
	}

	if ttype == query.TokenPartial {
		// a qualifier must stay next to the name it qualifies
		if s.direction == dirRightToLeft {
			for _, tr := range s.seq[:len(s.seq)-1] {
				if tr.Type == query.TokenQualifier {
					return 0, false
				}
			}
		}
		return s.direction, true
	}

	if s.hasTypes(ttype) {
		return 0, false
	}

	switch ttype {
	case query.TokenHousenumber:
		if s.direction == dirLeftToRight {
			if len(s.seq) == 1 && s.seq[0].Type == query.TokenQualifier {
				return 0, false
			}
			if len(s.seq) > 2 || s.hasTypes(query.TokenPostcode, query.TokenCountry) {
				return 0, false
			}
			return dirLeftToRight, true
		}
		if s.direction == dirRightToLeft || s.hasTypes(query.TokenPostcode, query.TokenCountry) {
			return dirRightToLeft, true
		}
		return s.direction, true

	case query.TokenPostcode:
		switch s.direction {
		case dirRightToLeft:
			if s.hasTypes(query.TokenHousenumber, query.TokenQualifier) {
				return 0, false
			}
			return dirRightToLeft, true
		case dirLeftToRight:
			if s.hasTypes(query.TokenCountry) {
				return 0, false
			}
			return dirLeftToRight, true
		}
		if s.hasTypes(query.TokenHousenumber, query.TokenQualifier) {
			return dirLeftToRight, true
		}
		return s.direction, true

	case query.TokenCountry:
		if s.direction == dirRightToLeft {
			return 0, false
		}
		return dirLeftToRight, true

	case query.TokenNearItem:
		return s.direction, true

	case query.TokenQualifier:
		switch s.direction {
		case dirLeftToRight:
			if (len(s.seq) == 1 && (s.seq[0].Type == query.TokenPartial || s.seq[0].Type == query.TokenNearItem)) ||
				(len(s.seq) == 2 && s.seq[0].Type == query.TokenNearItem && s.seq[1].Type == query.TokenPartial) {
				return dirLeftToRight, true
			}
			return 0, false
		case dirRightToLeft:
			return dirRightToLeft, true
		}
		tempseq := s.seq
		if tempseq[0].Type == query.TokenNearItem {
			tempseq = tempseq[1:]
		}
		switch {
		case len(tempseq) == 0:
			return dirLeftToRight, true
		case len(tempseq) == 1 && s.seq[0].Type == query.TokenHousenumber:
			return 0, false
		case len(tempseq) > 1 || s.hasTypes(query.TokenPostcode, query.TokenCountry):
			return dirRightToLeft, true
		}
		return dirUnknown, true
	}

	return 0, false
}

// advance returns a new state with the token appended, or false if that is
// not allowed. btype is the break at the start of the new token.
func (s *tokenSequence) advance(ttype query.TokenType, end int, btype query.BreakType) (*tokenSequence, bool) {
	newdir, ok := s.appendable(ttype)
	if !ok {
		return nil, false
	}

	if len(s.seq) == 0 {
		return &tokenSequence{
			seq:       []TypedRange{{Type: ttype, Range: query.TokenRange{Start: 0, End: end}}},
			direction: newdir,
			penalty:   s.penalty,
		}, true
	}

	last := s.seq[len(s.seq)-1]
	newseq := make([]TypedRange, len(s.seq), len(s.seq)+1)
	copy(newseq, s.seq)
	penalty := s.penalty
	if btype != query.BreakPhrase && last.Type == ttype {
		newseq[len(newseq)-1] = TypedRange{Type: ttype, Range: last.Range.ReplaceEnd(end)}
	} else {
		newseq = append(newseq, TypedRange{Type: ttype, Range: query.TokenRange{Start: last.Range.End, End: end}})
		penalty += query.TransitionPenalty(btype)
	}
	return &tokenSequence{seq: newseq, direction: newdir, penalty: penalty}, true
}

// adaptPenaltyFromPriors handles the partial terms found on the far side of
// a housenumber. It returns false if the sequence must be rejected.
func (s *tokenSequence) adaptPenaltyFromPriors(t Tuning, priors, newDir int) bool {
	if priors >= t.MaxPriors {
		if s.direction == dirUnknown {
			s.direction = newDir
		} else if priors == t.MaxPriors {
			s.penalty += t.PriorsPenalty
		} else {
			return false
		}
	}
	return true
}

// recheck validates a complete sequence. Housenumbers must be close to the
// start of the address in reading direction.
func (s *tokenSequence) recheck(t Tuning) bool {
	hnrpos := slices.IndexFunc(s.seq, func(tr TypedRange) bool { return tr.Type == query.TokenHousenumber })
	if hnrpos < 0 {
		return true
	}
	countPartials := func(trs []TypedRange) int {
		n := 0
		for _, tr := range trs {
			if tr.Type == query.TokenPartial {
				n++
			}
		}
		return n
	}
	if s.direction != dirRightToLeft {
		if !s.adaptPenaltyFromPriors(t, countPartials(s.seq[:hnrpos]), dirRightToLeft) {
			return false
		}
	}
	if s.direction != dirLeftToRight {
		if !s.adaptPenaltyFromPriors(t, countPartials(s.seq[hnrpos+1:]), dirLeftToRight) {
			return false
		}
	}
	if s.hasTypes(query.TokenNearItem) {
		s.penalty += t.NearHousenumberPenalty
	}
	return true
}

// assignments converts a complete sequence into token assignments.
func (s *tokenSequence) assignments(q *query.QueryStruct, t Tuning, yield func(TokenAssignment) bool) bool {
	base := FromRanges(s.seq)

	numAddrTerms := 0
	for _, r := range base.Address {
		numAddrTerms += r.Len()
	}
	if numAddrTerms > t.MaxAddressTerms {
		return true
	}

	if base.Postcode != nil && len(base.Address) > 0 {
		pc := *base.Postcode
		if (pc.Start == 0 && s.direction != dirRightToLeft) ||
			(pc.End == q.NumTokenSlots() && s.direction != dirLeftToRight) {
			penalty := s.penalty
			if pc.Start != 0 {
				penalty += 0.1
			}
			penalty += 0.1 * float64(max(0, len(base.Address)-1))
			a := base
			a.Penalty = penalty
			a.Address = slices.Clone(base.Address)
			if !yield(a) {
				return false
			}
		}
	}

	if len(base.Address) == 0 {
		if base.Housenumber == nil && (base.Postcode != nil || base.Country != nil || base.NearItem != nil) {
			a := base
			a.Penalty = s.penalty
			return yield(a)
		}
		return true
	}

	penalty := s.penalty
	if base.Postcode != nil && base.Postcode.Start == 0 {
		penalty += 0.1
	}
	if s.direction != dirRightToLeft {
		if !addressForward(q, base, s.direction, penalty, yield) {
			return false
		}
	}
	if s.direction != dirLeftToRight {
		if !addressBackward(q, base, s.direction, penalty, yield) {
			return false
		}
	}
	if base.Housenumber != nil && base.Qualifier == nil {
		a := base
		a.Penalty = penalty
		a.Address = slices.Clone(base.Address)
		return yield(a)
	}
	return true
}

// addressForward yields the assignments where the name is at the start of
// the address.
func addressForward(q *query.QueryStruct, base TokenAssignment, direction int, penalty float64, yield func(TokenAssignment) bool) bool {
	first := base.Address[0]
	if base.Postcode != nil && base.Postcode.Precedes(first) {
		return true
	}
	if base.Country == nil && direction == dirLeftToRight && q.DirPenalty > 0 {
		penalty += q.DirPenalty
	}

	a := base
	a.Penalty = penalty
	a.Name = &first
	a.Address = slices.Clone(base.Address[1:])
	if !yield(a) {
		return false
	}

	if (base.Housenumber != nil && first.End < base.Housenumber.Start) ||
		(base.Qualifier != nil && base.Qualifier.Follows(first)) ||
		q.Nodes[first.Start].PType != query.PhraseAny {
		return true
	}

	if (base.Housenumber != nil && base.Housenumber.Follows(first)) || len(q.Source) > 1 {
		penalty += 0.25
	}
	for i := first.Start + 1; i < first.End; i++ {
		name, addr := first.Split(i)
		a := base
		a.Penalty = penalty + query.TransitionPenalty(q.Nodes[i].BType)
		a.Name = &name
		a.Address = append([]query.TokenRange{addr}, base.Address[1:]...)
		if !yield(a) {
			return false
		}
	}
	return true
}

// addressBackward yields the assignments where the name is at the end of
// the address.
func addressBackward(q *query.QueryStruct, base TokenAssignment, direction int, penalty float64, yield func(TokenAssignment) bool) bool {
	last := base.Address[len(base.Address)-1]
	if base.Postcode != nil && base.Postcode.Follows(last) {
		return true
	}
	if base.Country == nil && direction == dirRightToLeft && q.DirPenalty < 0 {
		penalty -= q.DirPenalty
	}

	if direction == dirRightToLeft || len(base.Address) > 1 || base.Postcode != nil {
		a := base
		a.Penalty = penalty
		a.Name = &last
		a.Address = slices.Clone(base.Address[:len(base.Address)-1])
		if !yield(a) {
			return false
		}
	}

	if (base.Housenumber != nil && last.Start > base.Housenumber.End) ||
		(base.Qualifier != nil && base.Qualifier.Precedes(last)) ||
		q.Nodes[last.Start].PType != query.PhraseAny {
		return true
	}

	if base.Housenumber != nil && base.Housenumber.Precedes(last) {
		penalty += 0.4
	}
	if len(q.Source) > 1 {
		penalty += 0.25
	}
	for i := last.Start + 1; i < last.End; i++ {
		addr, name := last.Split(i)
		a := base
		a.Penalty = penalty + query.TransitionPenalty(q.Nodes[i].BType)
		a.Name = &name
		a.Address = append(slices.Clone(base.Address[:len(base.Address)-1]), addr)
		if !yield(a) {
			return false
		}
	}
	return true
}

// Assignments lazily enumerates all valid token assignments of the query.
func (e *Enumerator) Assignments(q *query.QueryStruct) iter.Seq[TokenAssignment] {
	return func(yield func(TokenAssignment) bool) {
		if q.NumTokenSlots() == 0 {
			return
		}
		direction := dirLeftToRight
		if len(q.Source) == 0 || q.Source[0].Type == query.PhraseAny {
			direction = dirUnknown
		}

		todo := []*tokenSequence{{direction: direction}}
		count := 0
		// push returns false when the consumer stopped the iteration
		push := func(next *tokenSequence) bool {
			if next.endPos() == q.NumTokenSlots() {
				if next.recheck(e.tuning) {
					return next.assignments(q, e.tuning, func(a TokenAssignment) bool {
						count++
						return yield(a)
					})
				}
				return true
			}
			if !next.isFinal() {
				todo = append(todo, next)
			}
			return true
		}

		for len(todo) > 0 {
			state := todo[len(todo)-1]
			todo = todo[:len(todo)-1]
			pos := state.endPos()
			node := q.Nodes[pos]

			for _, tl := range node.Starting {
				if next, ok := state.advance(tl.Type, tl.End, node.BType); ok {
					if !push(next) {
						return
					}
				}
			}
			if node.Partial != nil {
				if next, ok := state.advance(query.TokenPartial, pos+1, node.BType); ok {
					if !push(next) {
						return
					}
				}
			}
		}
		e.logger.Debug("assignments enumerated", "count", count)
	}
}
