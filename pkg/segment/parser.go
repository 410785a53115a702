package segment

import (
	"log/slog"
	"strings"
)

// Parser incrementally consumes an append-only stream of text fragments and
// emits typed segments as soon as their boundaries resolve. One Parser
// instance serves exactly one model response; create a fresh one (or call
// Reset) per response.
//
// Free text outside any tag is protocol noise and is discarded once a start
// delimiter is found after it. While inside a segment, any buffered suffix
// that could be the prefix of the end delimiter is withheld, so fragment
// boundaries never corrupt content or delimiters.
type Parser struct {
	onDelta   func(kind Kind, text string)
	onSegment func(seg Segment)

	pending string
	current *marker
	content strings.Builder
}

// NewParser creates a parser. onDelta receives incremental content for
// streaming kinds (reasoning, message) and may be nil. onSegment receives
// every completed segment and may be nil.
func NewParser(onDelta func(Kind, string), onSegment func(Segment)) *Parser {
	return &Parser{onDelta: onDelta, onSegment: onSegment}
}

// Reset returns the parser to its initial state, dropping any buffered input
// and any open segment.
func (p *Parser) Reset() {
	p.pending = ""
	p.current = nil
	p.content.Reset()
}

// Feed appends a stream fragment and emits whatever the new input completes.
// A single fragment may open, fill, and close any number of segments.
func (p *Parser) Feed(fragment string) {
	if fragment == "" {
		return
	}
	p.pending += fragment
	p.scan()
}

// Flush force-closes an unterminated segment at end of stream, treating it as
// implicitly closed. Withheld delimiter-prefix bytes are restored to the
// content first, since the end delimiter never arrived. Idle noise is
// discarded.
func (p *Parser) Flush() {
	if p.current != nil {
		if p.pending != "" {
			p.emitDelta(p.pending)
			p.content.WriteString(p.pending)
		}
		p.closeSegment()
	}
	p.pending = ""
}

func (p *Parser) scan() {
	for {
		if p.current == nil {
			if !p.scanIdle() {
				return
			}
			continue
		}
		if !p.scanContent() {
			return
		}
	}
}

// scanIdle looks for the earliest start delimiter. Returns true if a segment
// was opened and scanning should continue.
func (p *Parser) scanIdle() bool {
	best := -1
	var opened *marker
	for i := range grammar {
		m := &grammar[i]
		if idx := strings.Index(p.pending, m.start); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			opened = m
		}
	}
	if opened == nil {
		// No start delimiter yet; nothing is consumed until more input
		// arrives.
		return false
	}

	if best > 0 {
		slog.Debug("[Parser] discarding text outside tags", "bytes", best)
	}
	p.pending = p.pending[best+len(opened.start):]
	p.current = opened
	p.content.Reset()
	return true
}

// scanContent accumulates content for the open segment, withholding any
// suffix that could be the prefix of the end delimiter. Returns true if the
// segment closed and scanning should continue.
func (p *Parser) scanContent() bool {
	end := p.current.end
	if idx := strings.Index(p.pending, end); idx >= 0 {
		if idx > 0 {
			p.emitDelta(p.pending[:idx])
			p.content.WriteString(p.pending[:idx])
		}
		p.pending = p.pending[idx+len(end):]
		p.closeSegment()
		return true
	}

	hold := overlapLen(p.pending, end)
	if emit := p.pending[:len(p.pending)-hold]; emit != "" {
		p.emitDelta(emit)
		p.content.WriteString(emit)
		p.pending = p.pending[len(p.pending)-hold:]
	}
	return false
}

func (p *Parser) emitDelta(text string) {
	if p.onDelta != nil && p.current != nil && p.current.streaming {
		p.onDelta(p.current.kind, text)
	}
}

func (p *Parser) closeSegment() {
	seg := Segment{Kind: p.current.kind, Text: p.content.String()}
	p.current = nil
	p.content.Reset()
	if p.onSegment != nil {
		p.onSegment(seg)
	}
}
