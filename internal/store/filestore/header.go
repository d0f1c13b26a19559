package filestore

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// document is an issue file split into its header block and free-form body.
type document struct {
	header *yaml.Node // mapping node
	body   []byte
}

// parseDocument splits content into header and body. Content without a
// leading delimiter is treated as a body with an empty header.
func parseDocument(content []byte) (*document, error) {
	doc := &document{header: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}

	rest, ok := bytes.CutPrefix(content, []byte(delimiter+"\n"))
	if !ok {
		doc.body = content
		return doc, nil
	}

	var header []byte
	switch {
	case bytes.HasPrefix(rest, []byte(delimiter+"\n")):
		doc.body = rest[len(delimiter)+1:]
	case bytes.Equal(rest, []byte(delimiter)):
	default:
		end := bytes.Index(rest, []byte("\n"+delimiter+"\n"))
		if end >= 0 {
			header, doc.body = rest[:end+1], rest[end+len(delimiter)+2:]
		} else if bytes.HasSuffix(rest, []byte("\n"+delimiter)) {
			header = rest[:len(rest)-len(delimiter)]
		} else {
			return nil, fmt.Errorf("unterminated header block")
		}
	}

	if len(bytes.TrimSpace(header)) == 0 {
		return doc, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(header, &root); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("header is not a key/value block")
	}
	doc.header = root.Content[0]
	return doc, nil
}

// get returns the string form of a header field. Sequences are joined with
// commas so a hand-written [a, b] list reads the same as "a,b".
func (d *document) get(name string) string {
	v := d.lookup(name)
	if v == nil {
		return ""
	}
	switch v.Kind {
	case yaml.SequenceNode:
		parts := make([]string, 0, len(v.Content))
		for _, item := range v.Content {
			parts = append(parts, strings.TrimSpace(item.Value))
		}
		return strings.Join(parts, ",")
	case yaml.ScalarNode:
		if v.Tag == "!!null" {
			return ""
		}
		return v.Value
	}
	return ""
}

// set replaces or appends a header field, keeping existing key order.
func (d *document) set(name, value string) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	if v := d.lookup(name); v != nil {
		*v = *node
		return
	}
	d.header.Content = append(d.header.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
		node,
	)
}

func (d *document) lookup(name string) *yaml.Node {
	c := d.header.Content
	for i := 0; i+1 < len(c); i += 2 {
		if c[i].Value == name {
			return c[i+1]
		}
	}
	return nil
}

// render serializes the document back to file content.
func (d *document) render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	if len(d.header.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.header); err != nil {
			return nil, fmt.Errorf("encode header: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode header: %w", err)
		}
	}
	buf.WriteString(delimiter + "\n")
	buf.Write(d.body)
	return buf.Bytes(), nil
}
