package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/pdfslim/recovery"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // stream payload between 'stream' and 'endstream'
	TokenKeyword                  // other keywords (obj, endobj, >>, ], etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// Token is a single lexical element. Only the fields relevant to Type are set:
// Str for names and keywords, Int/Float/IsInt for numbers, Int/Gen for
// references, Bytes for strings and stream payloads.
type Token struct {
	Type  TokenType
	Str   string
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Bytes []byte
	Hex   bool
	Pos   int64
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	SetNextStreamLength(n int64)
}

type Config struct {
	MaxStringLength int64
	MaxNameLength   int
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

// pdfScanner incrementally buffers PDF data from a ReaderAt in fixed-size windows.
type pdfScanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

func New(r io.ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return s.closeAtEOF()
		}
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		if s.arrayDepth == 0 && s.cfg.Recovery != nil {
			if err := s.recover(errors.New("unbalanced array close"), "array"); err != nil {
				return Token{}, err
			}
			return s.Next()
		}
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

// closeAtEOF synthesizes closing delimiters for containers left open at the
// end of input when the recovery strategy allows it.
func (s *pdfScanner) closeAtEOF() (Token, error) {
	if s.arrayDepth == 0 && s.dictDepth == 0 {
		return Token{}, io.EOF
	}
	if err := s.recover(errors.New("unclosed container at end of input"), "eof"); err != nil {
		return Token{}, io.EOF
	}
	if s.arrayDepth > 0 {
		s.arrayDepth--
		return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
	}
	s.dictDepth--
	return Token{Type: TokenKeyword, Str: ">>", Pos: s.pos}, nil
}

func (s *pdfScanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					return err
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

// ensure makes data[n] addressable, reading more windows as needed.
func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if errors.Is(err, io.EOF) || n == 0 {
		s.eof = true
		return nil
	}
	return err
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	return s.data[s.pos+n]
}

// at returns the byte at the cursor, or false at end of input.
func (s *pdfScanner) at() (byte, bool) {
	if err := s.ensure(s.pos); err != nil {
		return 0, false
	}
	return s.data[s.pos], true
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		c, ok := s.at()
		if !ok || isDelimiter(c) {
			break
		}
		if c == '#' {
			s.pos++
			hi, ok1 := s.hexNibble()
			lo, ok2 := s.hexNibble()
			if !ok1 || !ok2 {
				out.WriteByte('#')
				continue
			}
			out.WriteByte(hi<<4 | lo)
			continue
		}
		out.WriteByte(c)
		s.pos++
		if s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			return Token{}, errors.New("name too long")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) hexNibble() (byte, bool) {
	c, ok := s.at()
	if !ok {
		return 0, false
	}
	v, ok := fromHex(c)
	if !ok {
		return 0, false
	}
	s.pos++
	return v, true
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		c, ok := s.at()
		if !ok {
			break
		}
		s.pos++
		switch c {
		case '\\':
			esc, ok := s.at()
			if !ok {
				continue
			}
			s.pos++
			switch {
			case esc == '\r':
				if n, ok := s.at(); ok && n == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2; k++ {
					d, ok := s.at()
					if !ok || d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
		default:
			buf.WriteByte(c)
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var nibbles []byte
	closed := false
	for {
		c, ok := s.at()
		if !ok {
			break
		}
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := fromHex(c)
		if !ok {
			if err := s.recover(errors.New("invalid hex digit"), "hex"); err != nil {
				return Token{}, err
			}
			continue
		}
		nibbles = append(nibbles, v)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, 0)
	}
	if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, nibbles[i]<<4|nibbles[i+1])
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

// scanStream consumes the payload after the 'stream' keyword. A length hint
// set through SetNextStreamLength is trusted when an 'endstream' marker follows
// it; otherwise the payload runs to the next 'endstream'.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	hint := s.nextStreamLen
	s.nextStreamLen = -1

	c, ok := s.at()
	if !ok {
		return Token{}, s.recover(errors.New("stream missing EOL before data"), "stream")
	}
	switch c {
	case '\r':
		s.pos++
		if n, ok := s.at(); ok && n == '\n' {
			s.pos++
		}
	case '\n':
		s.pos++
	default:
		if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
			return Token{}, err
		}
	}
	dataStart := s.pos
	needle := []byte("endstream")

	if hint >= 0 {
		if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		end := dataStart + hint
		if err := s.ensure(end + int64(len(needle)) + 2); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if end <= int64(len(s.data)) {
			p := end
			for p < int64(len(s.data)) && isWhitespace(s.data[p]) && p-end < 4 {
				p++
			}
			if p+int64(len(needle)) <= int64(len(s.data)) && bytes.Equal(s.data[p:p+int64(len(needle))], needle) {
				payload := append([]byte(nil), s.data[dataStart:end]...)
				s.pos = p + int64(len(needle))
				return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
			}
		}
		if err := s.recover(errors.New("stream length does not match endstream position"), "stream"); err != nil {
			return Token{}, err
		}
	}

	idx := int64(-1)
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle)) - 1); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			if err := s.recover(errors.New("endstream not found within scan limit"), "stream"); err != nil {
				return Token{}, err
			}
			break
		}
		if s.data[i] != 'e' || !bytes.Equal(s.data[i:i+int64(len(needle))], needle) {
			continue
		}
		after := i + int64(len(needle))
		followOK := s.ensure(after) != nil || isDelimiter(s.data[after])
		if followOK && hasStreamBreakBefore(s.data, i, dataStart) {
			idx = i
			break
		}
	}
	if idx < 0 {
		if err := s.recover(errors.New("endstream not found"), "stream"); err != nil {
			return Token{}, err
		}
		payload := append([]byte(nil), s.data[dataStart:]...)
		s.pos = int64(len(s.data))
		return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
	}
	end := idx
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream too long"), "stream")
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	s.pos = idx + int64(len(needle))
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	for {
		c, ok := s.at()
		if !ok || isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	kw := buf.String()
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start})
	}
	if n1, err := strconv.ParseInt(num1, 10, 64); err == nil && n1 >= 0 {
		if tok, ok := s.tryRef(start, n1); ok {
			return tok, nil
		}
		return s.emit(Token{Type: TokenNumber, Int: n1, IsInt: true, Pos: start})
	}
	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return s.emit(Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start})
	}
	f, err := parseReal(num1)
	if err != nil {
		return Token{}, s.recover(err, "number")
	}
	return s.emit(Token{Type: TokenNumber, Float: f, Pos: start})
}

// tryRef looks ahead for "<gen> R" after an object number and rewinds when
// the lookahead does not match.
func (s *pdfScanner) tryRef(start, num int64) (Token, bool) {
	after := s.pos
	if err := s.skipWSAndComments(); err != nil {
		s.pos = after
		return Token{}, false
	}
	num2 := s.scanNumberString()
	gen, err := strconv.Atoi(num2)
	if num2 == "" || err != nil || gen < 0 {
		s.pos = after
		return Token{}, false
	}
	if err := s.skipWSAndComments(); err != nil {
		s.pos = after
		return Token{}, false
	}
	if c, ok := s.at(); !ok || c != 'R' {
		s.pos = after
		return Token{}, false
	}
	if n := s.peekAhead(1); n != 0 && !isDelimiter(n) {
		s.pos = after
		return Token{}, false
	}
	s.pos++
	return Token{Type: TokenRef, Int: num, Gen: gen, Pos: start}, true
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	var buf bytes.Buffer
	seenDigit := false
	for {
		c, ok := s.at()
		if !ok {
			break
		}
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return buf.String()
}

// parseReal accepts the sloppy reals found in the wild, such as "--5" or "1.2.3".
func parseReal(str string) (float64, error) {
	if f, err := strconv.ParseFloat(str, 64); err == nil {
		return f, nil
	}
	neg := false
	for len(str) > 0 && (str[0] == '-' || str[0] == '+') {
		neg = neg != (str[0] == '-')
		str = str[1:]
	}
	if i := bytes.IndexByte([]byte(str), '.'); i >= 0 {
		if j := bytes.IndexByte([]byte(str[i+1:]), '.'); j >= 0 {
			str = str[:i+1+j]
		}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		f = -f
	}
	return f, nil
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(context.Background(), err, location)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, errors.New("array depth exceeded")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, errors.New("dict depth exceeded")
		}
	case TokenKeyword:
		if tok.Str == "]" && s.arrayDepth > 0 {
			s.arrayDepth--
		}
		if tok.Str == ">>" && s.dictDepth > 0 {
			s.dictDepth--
		}
	}
	return tok, nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isRegular(c byte) bool { return !isDelimiter(c) }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

// hasStreamBreakBefore reports whether position i is preceded by whitespace,
// making it a safe candidate for an endstream marker.
func hasStreamBreakBefore(data []byte, i, dataStart int64) bool {
	if i == dataStart {
		return true
	}
	return isWhitespace(data[i-1])
}
