package enrich

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var annotationOpen = []byte("[[")

// AnnotationsOutsideMarkup reports whether every [[...]] annotation in the
// paragraph sits in plain prose. Annotations inside link text, link
// destinations, image alt text, code spans or code blocks would corrupt the
// Markdown, so a paragraph carrying one is rejected.
func AnnotationsOutsideMarkup(paragraph string) bool {
	source := []byte(paragraph)
	if !bytes.Contains(source, annotationOpen) {
		return true
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	clean := true
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			if bytes.Contains(node.Destination, annotationOpen) || inlineContains(node, source) {
				clean = false
			}
		case *ast.Image:
			if bytes.Contains(node.Destination, annotationOpen) || inlineContains(node, source) {
				clean = false
			}
		case *ast.CodeSpan:
			if inlineContains(node, source) {
				clean = false
			}
		case *ast.FencedCodeBlock:
			if linesContain(node, source) {
				clean = false
			}
		case *ast.CodeBlock:
			if linesContain(node, source) {
				clean = false
			}
		}
		if !clean {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return clean
}

// inlineContains concatenates the node's text segments before matching;
// literal brackets often land in adjacent Text nodes.
func inlineContains(n ast.Node, source []byte) bool {
	var buf bytes.Buffer
	collectText(n, source, &buf)
	return bytes.Contains(buf.Bytes(), annotationOpen)
}

func collectText(n ast.Node, source []byte, buf *bytes.Buffer) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
		collectText(child, source, buf)
	}
}

func linesContain(n ast.Node, source []byte) bool {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if bytes.Contains(seg.Value(source), annotationOpen) {
			return true
		}
	}
	return false
}
