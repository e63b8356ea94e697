package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolrep/internal/domain"
)

const separator = "---"

type field int

const (
	none field = iota
	question
	answer
	context
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", question},
	{"A:", answer},
	{"C:", context},
}

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads Q:/A:/C: blocks from r. A field runs until the next prefix,
// a "---" line or the end of input; a new Q: always starts a new card.
// Blocks without a question are dropped.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &cardParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishCard()
	return p.cards, nil
}

type cardParser struct {
	cards   []domain.Card
	current domain.Card
	field   field
	block   []string
}

func (p *cardParser) line(line string) {
	if line == separator {
		p.finishCard()
		return
	}

	f, rest, ok := splitPrefix(line)
	if !ok {
		if p.field != none {
			p.block = append(p.block, line)
		}
		return
	}

	if f == question && p.field != none {
		p.finishCard()
	}
	p.flush()
	p.field = f
	p.block = append(p.block, rest)
}

func splitPrefix(line string) (field, string, bool) {
	for _, pf := range prefixes {
		if rest, ok := strings.CutPrefix(line, pf.prefix); ok {
			return pf.field, strings.TrimPrefix(rest, " "), true
		}
	}
	return none, "", false
}

// flush stores the lines gathered so far in the current field.
func (p *cardParser) flush() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n")
	switch p.field {
	case question:
		p.current.Question = content
	case answer:
		p.current.Answer = content
	case context:
		p.current.Context = content
	}
	p.block = nil
}

func (p *cardParser) finishCard() {
	p.flush()
	if p.current.Question != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.field = none
}
