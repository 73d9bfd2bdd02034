package loader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// writeFile creates name under dir with the given content.
func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// buildPDF returns a minimal PDF with one page per entry in pages. Each page
// shows its text in Helvetica; an empty entry gives a page with no text.
func buildPDF(pages ...string) []byte {
	var objs []string
	kids := ""
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled in once the kids are known
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for _, text := range pages {
		pageNum := len(objs) + 1
		kids += fmt.Sprintf("%d 0 R ", pageNum)
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", pageNum+1))
		content := "BT /F1 12 Tf 72 720 Td ET"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages))

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestLoad_SingleTextFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "  The quick brown fox.\n")

	docs, err := New(slog.Default()).Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("want 1 document, got %d", len(docs))
	}
	if docs[0].Metadata.Source != "notes.txt" {
		t.Errorf("source: want notes.txt, got %q", docs[0].Metadata.Source)
	}
	if docs[0].Metadata.Page != 0 {
		t.Errorf("text files carry no page, got %d", docs[0].Metadata.Page)
	}
	if docs[0].Content != "The quick brown fox." {
		t.Errorf("content not cleaned: %q", docs[0].Content)
	}
}

func TestLoad_EmptyDirectory(t *testing.T) {
	t.Parallel()

	docs, err := New(nil).Load(t.Context(), t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("want 0 documents, got %d", len(docs))
	}
}

func TestLoad_SkipsUnsupportedExtensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "photo.jpg", "\xff\xd8\xff")
	writeFile(t, dir, "b.MD", "# beta")
	writeFile(t, dir, "data.csv", "x,y")

	docs, err := New(nil).Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].Metadata.Source != "a.txt" || docs[1].Metadata.Source != "b.MD" {
		t.Errorf("unexpected sources: %q, %q", docs[0].Metadata.Source, docs[1].Metadata.Source)
	}
}

func TestLoad_SkipsUnreadableFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "fine")
	writeFile(t, dir, "bad.txt", "\xff\xfe\xfd")
	writeFile(t, dir, "broken.pdf", "this is not a pdf")

	docs, err := New(nil).Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load must not abort on a bad file: %v", err)
	}
	if len(docs) != 1 || docs[0].Metadata.Source != "good.txt" {
		t.Errorf("want only good.txt, got %+v", docs)
	}
}

func TestLoad_SkipsSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "top.txt", "top")

	docs, err := New(nil).Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("want 1 document, got %d", len(docs))
	}
}

func TestLoad_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Load(t.Context(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrDirNotFound) {
		t.Errorf("want ErrDirNotFound, got %v", err)
	}
}

func TestLoad_PathIsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")

	_, err := New(nil).Load(t.Context(), filepath.Join(dir, "file.txt"))
	if !errors.Is(err, ErrDirNotFound) {
		t.Errorf("want ErrDirNotFound, got %v", err)
	}
}

func TestLoad_PDFOnePerPage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "guide.pdf", string(buildPDF("Hello page one", "Second page text")))

	docs, err := New(nil).Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d: %+v", len(docs), docs)
	}

	want := []struct {
		content string
		page    int
	}{
		{"Hello page one", 1},
		{"Second page text", 2},
	}
	for i, w := range want {
		d := docs[i]
		if d.Content != w.content || d.Metadata.Page != w.page || d.Metadata.Source != "guide.pdf" {
			t.Errorf("doc %d = %+v, want content %q page %d", i, d, w.content, w.page)
		}
	}
}

func TestLoad_PDFSkipsBlankPages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "scan.pdf", string(buildPDF("Intro", "", "Appendix")))

	docs, err := New(nil).Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 || docs[0].Metadata.Page != 1 || docs[1].Metadata.Page != 3 {
		t.Errorf("want pages 1 and 3, got %+v", docs)
	}
}
