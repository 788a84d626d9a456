package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/parser"
	"github.com/wudi/pdfslim/writer"
)

// samplePDF holds one unfiltered, highly repetitive content stream.
func samplePDF(t *testing.T) []byte {
	t.Helper()
	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))
	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(0))
	pages.Set(raw.NameLiteral("Kids"), raw.NewArray())

	content := bytes.Repeat([]byte("BT /F1 12 Tf 72 712 Td (Hello) Tj ET\n"), 200)
	sd := raw.Dict()
	sd.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(content))))

	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			{Num: 2}: pages,
			{Num: 3}: raw.NewStream(sd, content),
		},
		Trailer: raw.Dict(),
		Version: "1.7",
	}
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))
	var buf bytes.Buffer
	require.NoError(t, writer.NewWriter(writer.Config{}).Write(context.Background(), doc, &buf))
	return buf.Bytes()
}

func compactPDF() []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	off := b.Len()
	b.WriteString("1 0 obj<</Type/Catalog>>endobj\n")
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off)
	fmt.Fprintf(&b, "trailer<</Size 2/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF", xref)
	return []byte(b.String())
}

func reparse(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	return doc
}

func TestRunFileToFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	input := samplePDF(t)
	require.NoError(t, os.WriteFile(in, input, 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-o", out, "--log-level", "error", in}, nil, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Less(t, len(got), len(input))
	doc := reparse(t, got)
	st, ok := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.StreamObj)
	require.True(t, ok)
	filter, _ := st.Dict.Get(raw.NameLiteral("Filter"))
	assert.Equal(t, raw.NameLiteral("FlateDecode"), filter)
}

func TestRunBase64RoundTrip(t *testing.T) {
	input := samplePDF(t)
	encoded := base64.StdEncoding.EncodeToString(input)
	// Line-wrapped input is accepted.
	wrapped := encoded[:40] + "\n" + encoded[40:] + "\n"

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--base64", "--log-level", "error"}, strings.NewReader(wrapped), &stdout, &stderr)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(decoded, []byte("%PDF-1.7")))
	assert.Less(t, len(decoded), len(input))
	reparse(t, decoded)
}

func TestRunRejectsInvalidBase64(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--base64"}, strings.NewReader("not base64!"), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode base64 input")
	assert.Empty(t, stdout.String())
}

func TestRunLoadFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--log-level", "error"}, strings.NewReader("this is not a pdf"), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load PDF")
	assert.Empty(t, stdout.String())
}

func TestRunKeepOriginalFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pdfslim.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("keep_original = true\n[log]\nlevel = \"error\"\n"), 0o644))

	// A tightly formatted document with nothing to compress grows when
	// rewritten.
	input := compactPDF()

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath}, bytes.NewReader(input), &stdout, &stderr))
	assert.Equal(t, input, stdout.Bytes())

	// The flag overrides the file.
	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "--keep-original=false"}, bytes.NewReader(input), &stdout, &stderr))
	assert.NotEqual(t, input, stdout.Bytes())
}

func TestRunReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--report", "--log-level", "error"}, bytes.NewReader(samplePDF(t)), &stdout, &stderr)
	require.NoError(t, err)
	report := stderr.String()
	assert.Contains(t, report, "OBJECT")
	assert.Contains(t, report, "3 0 R")
	assert.Contains(t, report, "replaced")
}

func TestRunJSONLogs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--log-format", "json"}, bytes.NewReader(samplePDF(t)), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), `"msg":"PDF compressed successfully"`)
}

func TestRunRejectsBadFlags(t *testing.T) {
	cases := [][]string{
		{"--log-level", "loud"},
		{"--log-format", "xml"},
		{"a.pdf", "b.pdf"},
		{"--no-such-flag"},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		err := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
		assert.Error(t, err, "args %v", args)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfslim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
format = "json"

[limits]
max_decompressed_size = 1024
max_parse_time = "10s"
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int64(1024), cfg.Limits.MaxDecompressedSize)
	assert.Equal(t, 10*time.Second, cfg.Limits.MaxParseTime)
	assert.Equal(t, 100, cfg.Limits.MaxIndirectDepth)

	require.NoError(t, os.WriteFile(path, []byte("colour = \"blue\"\n"), 0o644))
	_, err = loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")

	_, err = loadConfig(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}
