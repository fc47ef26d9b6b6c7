package markdown

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/site2rag/internal/models"
)

// quoteTriggers are characters that force double-quoting of a scalar value
// so the front-matter stays parseable.
const quoteTriggers = ":#'\"@[]{}|>"

// FrontMatter serializes page metadata to a YAML block between --- fences.
// Empty values are dropped; key order is stable.
func FrontMatter(meta *models.DocumentMeta, pageURL string, crawledAt time.Time) (string, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	addScalar(root, "title", meta.Title)
	addScalar(root, "url", pageURL)
	addScalar(root, "crawled_at", crawledAt.UTC().Format(time.RFC3339))
	addScalar(root, "description", meta.Description)
	addSequence(root, "keywords", meta.Keywords)
	addScalar(root, "author", meta.Author)
	if d := meta.AuthorDetail; d != nil {
		addScalar(root, "authorDescription", d.Description)
		addScalar(root, "authorJobTitle", d.JobTitle)
		addScalar(root, "authorImage", d.Image)
		addScalar(root, "authorUrl", d.URL)
		addScalar(root, "authorOrganization", d.Organization)
	}
	addScalar(root, "publisher", meta.Publisher)
	addScalar(root, "publisherLogo", meta.PublisherLogo)
	addScalar(root, "datePublished", meta.DatePublished)
	addScalar(root, "dateModified", meta.DateModified)
	addScalar(root, "language", meta.Language)
	addScalar(root, "image", meta.Image)
	addScalar(root, "section", meta.Section)
	addScalar(root, "license", meta.License)
	addScalar(root, "audioDuration", meta.AudioDuration)
	addScalar(root, "canonical", meta.Canonical)

	out, err := yaml.Marshal(root)
	if err != nil {
		return "", err
	}
	return "---\n" + string(out) + "---\n", nil
}

// Document assembles the final file: front-matter, blank line, body.
func Document(frontMatter, body string) string {
	return frontMatter + "\n" + strings.TrimRight(body, "\n") + "\n"
}

func addScalar(root *yaml.Node, key, value string) {
	if value == "" {
		return
	}
	root.Content = append(root.Content, keyNode(key), scalarNode(value))
}

func addSequence(root *yaml.Node, key string, values []string) {
	if len(values) == 0 {
		return
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, v := range values {
		seq.Content = append(seq.Content, scalarNode(v))
	}
	root.Content = append(root.Content, keyNode(key), seq)
}

func keyNode(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: key}
}

func scalarNode(value string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	if needsQuoting(value) {
		node.Style = yaml.DoubleQuotedStyle
	}
	return node
}

func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	if strings.ContainsAny(value, quoteTriggers) {
		return true
	}
	if strings.HasPrefix(value, "-") {
		return true
	}
	return value != strings.TrimSpace(value)
}
