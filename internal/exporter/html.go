package exporter

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nikbrunner/bmsort/internal/model"
)

// DefaultExportPath returns the default export file path.
// Format: ~/Downloads/bookmarks-export-YYYY-MM-DD.html
func DefaultExportPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("bookmarks-export-%s.html", time.Now().Format("2006-01-02"))
	return filepath.Join(home, "Downloads", filename), nil
}

// ExportHTML exports a tree snapshot to Netscape bookmark HTML format. The
// reserved containers become top-level folders; the bar is marked as the
// toolbar folder so browsers import it back into place.
func ExportHTML(root *model.Node) string {
	var b strings.Builder

	// Header
	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	b.WriteString("<TITLE>Bookmarks</TITLE>\n")
	b.WriteString("<H1>Bookmarks</H1>\n")
	b.WriteString("<DL><p>\n")

	if root != nil {
		writeItems(&b, root.Children, 1)
	}

	// Footer
	b.WriteString("</DL><p>\n")

	return b.String()
}

// writeItems recursively writes the given nodes in their stored order.
func writeItems(b *strings.Builder, nodes []*model.Node, indent int) {
	prefix := strings.Repeat("    ", indent)

	for _, n := range nodes {
		if n.IsFolder() {
			attrs := addDate(n)
			if n.ID == model.BarID {
				attrs += ` PERSONAL_TOOLBAR_FOLDER="true"`
			}
			fmt.Fprintf(b, "%s<DT><H3%s>%s</H3>\n", prefix, attrs, html.EscapeString(n.Title))
			fmt.Fprintf(b, "%s<DL><p>\n", prefix)
			writeItems(b, n.Children, indent+1)
			fmt.Fprintf(b, "%s</DL><p>\n", prefix)
			continue
		}

		fmt.Fprintf(b,
			"%s<DT><A HREF=\"%s\"%s>%s</A>\n",
			prefix,
			html.EscapeString(n.URL),
			addDate(n),
			html.EscapeString(n.Title),
		)
	}
}

func addDate(n *model.Node) string {
	if n.DateAdded.IsZero() {
		return ""
	}
	return fmt.Sprintf(" ADD_DATE=\"%d\"", n.DateAdded.Unix())
}
