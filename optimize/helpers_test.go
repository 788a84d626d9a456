package optimize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/observability"
	"github.com/wudi/pdfslim/parser"
	"github.com/wudi/pdfslim/writer"
)

// buildPDF serializes a catalog (1), a page tree (2) and extra objects
// numbered from 3 upwards. info is stored directly in the trailer when set.
func buildPDF(t *testing.T, extra map[int]raw.Object, info raw.Object) []byte {
	t.Helper()
	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))
	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(0))
	pages.Set(raw.NameLiteral("Kids"), raw.NewArray())

	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{{Num: 1}: catalog, {Num: 2}: pages},
		Trailer: raw.Dict(),
		Version: "1.7",
	}
	for num, obj := range extra {
		doc.Objects[raw.ObjectRef{Num: num}] = obj
	}
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))
	if info != nil {
		doc.Trailer.Set(raw.NameLiteral("Info"), info)
	}
	var buf bytes.Buffer
	require.NoError(t, writer.NewWriter(writer.Config{}).Write(context.Background(), doc, &buf))
	return buf.Bytes()
}

func parsePDF(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	return doc
}

func stream(data []byte, kv ...interface{}) *raw.StreamObj {
	d := raw.Dict()
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			d.Set(raw.NameLiteral(key), raw.NameLiteral(v))
		case int:
			d.Set(raw.NameLiteral(key), raw.NumberInt(int64(v)))
		case raw.Object:
			d.Set(raw.NameLiteral(key), v)
		}
	}
	d.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	return raw.NewStream(d, data)
}

func streamAt(t *testing.T, doc *raw.Document, num int) *raw.StreamObj {
	t.Helper()
	st, ok := doc.Objects[raw.ObjectRef{Num: num}].(*raw.StreamObj)
	require.True(t, ok, "object %d is not a stream", num)
	return st
}

func resultFor(t *testing.T, rep Report, num int) StreamResult {
	t.Helper()
	for _, s := range rep.Streams {
		if s.Ref.Num == num {
			return s
		}
	}
	t.Fatalf("no report entry for object %d", num)
	return StreamResult{}
}

// fakeCodec returns canned results and counts calls.
type fakeCodec struct {
	img       image.Image
	decodeErr error
	jpeg      []byte
	png       []byte
	encodeErr error

	decodes int
}

func (f *fakeCodec) Decode([]byte) (image.Image, string, error) {
	f.decodes++
	if f.decodeErr != nil {
		return nil, "", f.decodeErr
	}
	return f.img, "fake", nil
}

func (f *fakeCodec) EncodeJPEG(image.Image, int) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return f.jpeg, nil
}

func (f *fakeCodec) EncodePNG(image.Image) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return f.png, nil
}

type growingCompressor struct{}

func (growingCompressor) Compress(data []byte, _ int) ([]byte, error) {
	return append(append([]byte{}, data...), "padding"...), nil
}

type failingCompressor struct{}

func (failingCompressor) Compress([]byte, int) ([]byte, error) {
	return nil, errors.New("compressor broke")
}

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() recordingLogger {
	return recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level, msg})
}

func (l recordingLogger) Debug(msg string, _ ...observability.Field) { l.add("debug", msg) }
func (l recordingLogger) Info(msg string, _ ...observability.Field)  { l.add("info", msg) }
func (l recordingLogger) Warn(msg string, _ ...observability.Field)  { l.add("warn", msg) }
func (l recordingLogger) Error(msg string, _ ...observability.Field) { l.add("error", msg) }
func (l recordingLogger) With(...observability.Field) observability.Logger { return l }

func (l recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range *l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}
