package simshell

import (
	"errors"
	"strings"
)

// guard says when a segment runs relative to the previous exit code.
type guard int

const (
	always       guard = iota // first segment, or after ;
	onlyIfOK                  // after &&
	onlyIfFailed              // after ||
)

func (g guard) token() string {
	if g == onlyIfFailed {
		return "||"
	}
	return "&&"
}

// segment is one simple command of a command line.
type segment struct {
	argv     []string
	redirect string
	appendTo bool
	when     guard
}

// runs reports whether the segment executes after a command that exited with code.
func (s segment) runs(code int) bool {
	switch s.when {
	case onlyIfOK:
		return code == 0
	case onlyIfFailed:
		return code != 0
	}
	return true
}

// split tokenizes a command line. It understands single and double quotes,
// backslash escapes, ";", "&&", "||", ">" and ">>". Pipes and expansions are
// not supported.
func split(line string) ([]segment, error) {
	var (
		segs    []segment
		cur     segment
		word    strings.Builder
		inWord  bool
		pending string // "" | ">" | ">>"
	)

	flushWord := func() error {
		if !inWord {
			return nil
		}
		w := word.String()
		word.Reset()
		inWord = false
		if pending != "" {
			if cur.redirect != "" {
				return errors.New("multiple redirections")
			}
			cur.redirect, cur.appendTo = w, pending == ">>"
			pending = ""
			return nil
		}
		cur.argv = append(cur.argv, w)
		return nil
	}
	endSegment := func(next guard) error {
		if err := flushWord(); err != nil {
			return err
		}
		if pending != "" {
			return errors.New("syntax error near unexpected token `newline'")
		}
		if len(cur.argv) == 0 {
			switch {
			case next != always:
				return errors.New("syntax error near unexpected token `" + next.token() + "'")
			case cur.when != always:
				return errors.New("syntax error near unexpected token `" + cur.when.token() + "'")
			}
		}
		if len(cur.argv) > 0 {
			segs = append(segs, cur)
		}
		cur = segment{when: next}
		return nil
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'':
			end := strings.IndexByte(line[i+1:], '\'')
			if end < 0 {
				return nil, errors.New("unterminated quote")
			}
			word.WriteString(line[i+1 : i+1+end])
			inWord = true
			i += end + 1
		case c == '"':
			i++
			for ; i < len(line) && line[i] != '"'; i++ {
				if line[i] == '\\' && i+1 < len(line) && strings.IndexByte(`"\$`+"`", line[i+1]) >= 0 {
					i++
				}
				word.WriteByte(line[i])
			}
			if i >= len(line) {
				return nil, errors.New("unterminated quote")
			}
			inWord = true
		case c == '\\' && i+1 < len(line):
			i++
			word.WriteByte(line[i])
			inWord = true
		case c == ' ' || c == '\t' || c == '\n':
			if c == '\n' {
				if err := endSegment(always); err != nil {
					return nil, err
				}
				continue
			}
			if err := flushWord(); err != nil {
				return nil, err
			}
		case c == ';':
			if err := endSegment(always); err != nil {
				return nil, err
			}
		case c == '&' && i+1 < len(line) && line[i+1] == '&':
			i++
			if err := endSegment(onlyIfOK); err != nil {
				return nil, err
			}
		case c == '|' && i+1 < len(line) && line[i+1] == '|':
			i++
			if err := endSegment(onlyIfFailed); err != nil {
				return nil, err
			}
		case c == '|':
			return nil, errors.New("pipes are not supported")
		case c == '>':
			if err := flushWord(); err != nil {
				return nil, err
			}
			if pending != "" {
				return nil, errors.New("syntax error near unexpected token `>'")
			}
			pending = ">"
			if i+1 < len(line) && line[i+1] == '>' {
				pending = ">>"
				i++
			}
		default:
			word.WriteByte(c)
			inWord = true
		}
	}
	if err := endSegment(always); err != nil {
		return nil, err
	}
	return segs, nil
}
