package exporter

import (
	"strings"
	"testing"
	"time"

	"github.com/nikbrunner/bmsort/internal/importer"
	"github.com/nikbrunner/bmsort/internal/model"
)

func folder(id, title string, children ...*model.Node) *model.Node {
	if children == nil {
		children = []*model.Node{}
	}
	return &model.Node{ID: id, Title: title, Children: children}
}

func bookmark(title, url string) *model.Node {
	return &model.Node{ID: title, Title: title, URL: url, DateAdded: time.Unix(1700000000, 0)}
}

func tree(bar ...*model.Node) *model.Node {
	return folder(model.RootID, "",
		folder(model.BarID, model.BarTitle, bar...),
		folder(model.OtherID, model.OtherTitle),
	)
}

func TestExportHTML_EmptyStore(t *testing.T) {
	html := ExportHTML(tree())

	// Should have basic structure even when empty
	if !strings.Contains(html, "<!DOCTYPE NETSCAPE-Bookmark-file-1>") {
		t.Error("expected DOCTYPE declaration")
	}
	if !strings.Contains(html, "<TITLE>Bookmarks</TITLE>") {
		t.Error("expected TITLE element")
	}
	if !strings.Contains(html, "<H1>Bookmarks</H1>") {
		t.Error("expected H1 element")
	}
	if !strings.Contains(html, `PERSONAL_TOOLBAR_FOLDER="true">Bookmarks Bar</H3>`) {
		t.Error("expected the bar marked as toolbar folder")
	}
}

func TestExportHTML_NilRoot(t *testing.T) {
	html := ExportHTML(nil)
	if !strings.Contains(html, "<DL><p>") {
		t.Error("expected empty list")
	}
}

func TestExportHTML_SingleBookmark(t *testing.T) {
	html := ExportHTML(tree(bookmark("GitHub", "https://github.com")))

	if !strings.Contains(html, `<A HREF="https://github.com"`) {
		t.Error("expected bookmark URL")
	}
	if !strings.Contains(html, "GitHub</A>") {
		t.Error("expected bookmark title")
	}
	if !strings.Contains(html, `ADD_DATE="1700000000"`) {
		t.Error("expected ADD_DATE timestamp")
	}
}

func TestExportHTML_NestedFolders(t *testing.T) {
	html := ExportHTML(tree(
		folder("f1", "Development",
			folder("f2", "React", bookmark("TanStack Router", "https://tanstack.com/router")),
		),
	))

	barIdx := strings.Index(html, "Bookmarks Bar</H3>")
	devIdx := strings.Index(html, "Development</H3>")
	reactIdx := strings.Index(html, "React</H3>")
	tanstackIdx := strings.Index(html, "TanStack Router</A>")

	if barIdx == -1 || devIdx == -1 || reactIdx == -1 || tanstackIdx == -1 {
		t.Fatal("missing elements in output")
	}
	if barIdx >= devIdx || devIdx >= reactIdx || reactIdx >= tanstackIdx {
		t.Error("expected proper nesting order: Bookmarks Bar > Development > React > TanStack Router")
	}
}

func TestExportHTML_EscapesSpecialCharacters(t *testing.T) {
	html := ExportHTML(tree(bookmark("Test <script>alert('xss')</script>", "https://example.com?foo=bar&baz=qux")))

	// Title should be escaped
	if strings.Contains(html, "<script>") {
		t.Error("script tag should be escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("expected escaped script tag")
	}

	// URL should be escaped
	if strings.Contains(html, "foo=bar&baz") {
		t.Error("ampersand should be escaped in URL")
	}
	if !strings.Contains(html, "foo=bar&amp;baz") {
		t.Error("expected escaped ampersand in URL")
	}
}

func TestExportHTML_RoundTripsThroughImporter(t *testing.T) {
	html := ExportHTML(tree(
		folder("f1", "Development", bookmark("Go", "https://go.dev")),
		bookmark("News", "https://news.test"),
	))

	nodes, err := importer.ParseHTML(strings.NewReader(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected bar and other folders, got %d nodes", len(nodes))
	}
	bar := nodes[0]
	if bar.Title != model.BarTitle || len(bar.Children) != 2 {
		t.Fatalf("unexpected bar %+v", bar)
	}
	if bar.Children[0].Children[0].URL != "https://go.dev" {
		t.Errorf("expected Go inside Development, got %+v", bar.Children[0])
	}
	if bar.Children[1].DateAdded != 1700000000000 {
		t.Errorf("expected ADD_DATE to survive, got %d", bar.Children[1].DateAdded)
	}
}
