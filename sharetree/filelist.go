package sharetree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"

	"github.com/dcpeer/dcpeer/tth"
)

// Compression selects the optional container compression applied to a
// saved file list.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
)

// xmlFileListing mirrors <FileListing Version="1" CID=… Base=…>.
type xmlFileListing struct {
	XMLName xml.Name    `xml:"FileListing"`
	Version string      `xml:"Version,attr"`
	CID     string      `xml:"CID,attr"`
	Base    string      `xml:"Base,attr"`
	Dirs    []xmlDirEnt `xml:"Directory"`
	Files   []xmlFileEnt `xml:"File"`
}

type xmlDirEnt struct {
	Name       string       `xml:"Name,attr"`
	Incomplete *bool        `xml:"Incomplete,attr,omitempty"`
	Dirs       []xmlDirEnt  `xml:"Directory"`
	Files      []xmlFileEnt `xml:"File"`
}

type xmlFileEnt struct {
	Name string `xml:"Name,attr"`
	Size uint64 `xml:"Size,attr"`
	TTH  string `xml:"TTH,attr"`
}

// Save renders the tree rooted at root as an XML file listing, applies
// the requested compression, and writes it to path atomically via
// write-temp-then-rename.
func Save(root *Node, path, cid string, compression Compression) error {
	listing := xmlFileListing{
		Version: "1",
		CID:     cid,
		Base:    "/",
	}
	for _, c := range root.children {
		if c.isFile {
			listing.Files = append(listing.Files, toXMLFile(c))
		} else {
			listing.Dirs = append(listing.Dirs, toXMLDir(c))
		}
	}

	raw, err := xml.MarshalIndent(listing, "", "  ")
	if err != nil {
		return fmt.Errorf("sharetree: marshal file listing: %w", err)
	}
	raw = append([]byte(xml.Header), raw...)

	payload, err := compress(raw, compression)
	if err != nil {
		return fmt.Errorf("sharetree: compress file listing: %w", err)
	}

	return writeAtomic(path, payload)
}

func toXMLFile(n *Node) xmlFileEnt {
	var tthStr string
	if n.hasTTH {
		tthStr = n.tth.String()
	}
	return xmlFileEnt{Name: n.name, Size: n.size, TTH: tthStr}
}

func toXMLDir(n *Node) xmlDirEnt {
	d := xmlDirEnt{Name: n.name}
	if n.incomplete {
		v := true
		d.Incomplete = &v
	}
	for _, c := range n.children {
		if c.isFile {
			d.Files = append(d.Files, toXMLFile(c))
		} else {
			d.Dirs = append(d.Dirs, toXMLDir(c))
		}
	}
	return d
}

func compress(raw []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionBzip2:
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, nil)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("sharetree: unknown compression %d", c)
	}
}

func decompress(payload []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionBzip2:
		r, err := bzip2.NewReader(bytes.NewReader(payload), nil)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("sharetree: unknown compression %d", c)
	}
}

// writeAtomic writes data to path via a temp file in the same
// directory followed by a rename, so a crash never leaves a partially
// written file list on disk.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".filelist-*.tmp")
	if err != nil {
		return fmt.Errorf("sharetree: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("sharetree: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sharetree: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("sharetree: rename temp file into place: %w", err)
	}
	return nil
}

// Load reads an XML file listing from path, undoing the requested
// compression, and rebuilds a detached root node plus its TTH index.
// Invalid size, a malformed TTH (not 39 base32 characters), a missing
// name, stray text, or a non-self-closing File element abort the load
// with a parse error.
func Load(path string, compression Compression) (*Node, *Index, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("sharetree: read file listing: %w", err)
	}
	raw, err := decompress(payload, compression)
	if err != nil {
		return nil, nil, fmt.Errorf("sharetree: decompress file listing: %w", err)
	}
	return parseFileListing(raw)
}

func parseFileListing(raw []byte) (*Node, *Index, error) {
	if err := validateNoStrayContent(raw); err != nil {
		return nil, nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))

	var listing xmlFileListing
	if err := dec.Decode(&listing); err != nil {
		return nil, nil, fmt.Errorf("sharetree: parse file listing: %w", err)
	}

	root := NewRoot(listing.Base)
	if err := populateDir(root, listing.Dirs, listing.Files); err != nil {
		return nil, nil, err
	}

	idx := NewIndex()
	idx.Rebuild(root)
	return root, idx, nil
}

// validateNoStrayContent walks raw token-by-token to catch the two
// cases plain struct decoding silently swallows: non-whitespace
// character data anywhere (this schema carries every value as an
// attribute, never element text), and a File element that is not
// self-closing — one with nested text or a child element, which a
// Directory/File-only schema never produces.
func validateNoStrayContent(raw []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var stack []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sharetree: parse file listing: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > 0 && stack[len(stack)-1] == "File" {
				return fmt.Errorf("sharetree: parse file listing: File element is not self-closing (contains nested <%s>)", t.Name.Local)
			}
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if text := strings.TrimSpace(string(t)); text != "" {
				if len(stack) > 0 && stack[len(stack)-1] == "File" {
					return fmt.Errorf("sharetree: parse file listing: File element is not self-closing (contains text %q)", text)
				}
				return fmt.Errorf("sharetree: parse file listing: stray text %q", text)
			}
		}
	}
}

func populateDir(dir *Node, dirs []xmlDirEnt, files []xmlFileEnt) error {
	for _, f := range files {
		node, err := fromXMLFile(f)
		if err != nil {
			return err
		}
		if err := InsertChild(dir, node); err != nil {
			return fmt.Errorf("sharetree: parse file listing: %w", err)
		}
	}
	for _, d := range dirs {
		if d.Name == "" {
			return fmt.Errorf("sharetree: parse file listing: directory missing Name")
		}
		node := NewDir(d.Name)
		if d.Incomplete != nil {
			node.incomplete = *d.Incomplete
		}
		if err := populateDir(node, d.Dirs, d.Files); err != nil {
			return err
		}
		if err := InsertChild(dir, node); err != nil {
			return fmt.Errorf("sharetree: parse file listing: %w", err)
		}
	}
	return nil
}

func fromXMLFile(f xmlFileEnt) (*Node, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("sharetree: parse file listing: file missing Name")
	}
	var digest tth.Digest
	hasTTH := false
	if f.TTH != "" {
		d, err := tth.ParseDigest(f.TTH)
		if err != nil {
			return nil, fmt.Errorf("sharetree: parse file listing: malformed TTH for %q: %w", f.Name, err)
		}
		digest = d
		hasTTH = true
	}
	return NewFile(f.Name, f.Size, digest, hasTTH, 0), nil
}
