// Package step reads and writes assembly documents as ISO 10303-21 exchange
// files.
//
// Parts are written as products whose shape representation is a CSG_SOLID
// over BLOCK, SPHERE, RIGHT_CIRCULAR_CYLINDER and BOOLEAN_RESULT entities.
// Assemblies are products without geometry. Every instance and nested
// assembly is a NEXT_ASSEMBLY_USAGE_OCCURRENCE placed by a cartesian
// transformation operator. Colors are STYLED_ITEMs on the part's solid or on
// the occurrence that overrides it.
//
// Entities are numbered in document walk order, so exporting the same
// document twice yields the same bytes apart from the FILE_NAME timestamp.
package step

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Header carries the FILE_NAME fields written verbatim into the file.
type Header struct {
	Author       string
	Organization string
	FileName     string
}

// Options control Export.
type Options struct {
	Compress bool             // wrap the text in a gzip envelope
	Now      func() time.Time // timestamp source; defaults to time.Now
}

const (
	schemaName        = "AUTOMOTIVE_DESIGN"
	originatingSystem = "asmdoc"
	timestampLayout   = "2006-01-02T15:04:05"
)

// Export writes doc as an exchange file.
func Export(doc *asm.Document, h Header, opts Options) ([]byte, error) {
	if doc.Closed() {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Err: asm.ErrClosed}
	}
	e := newEncoder(doc)
	if err := e.encode(); err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	var out bytes.Buffer
	out.WriteString("ISO-10303-21;\nHEADER;\n")
	fmt.Fprintf(&out, "FILE_DESCRIPTION(%s,%s);\n", list(str("asmdoc assembly document")), str("2;1"))
	fmt.Fprintf(&out, "FILE_NAME(%s,%s,%s,%s,%s,%s,%s);\n",
		str(h.FileName),
		str(now().UTC().Format(timestampLayout)),
		list(str(h.Author)),
		list(str(h.Organization)),
		str(originatingSystem),
		str(originatingSystem),
		str(""),
	)
	fmt.Fprintf(&out, "FILE_SCHEMA(%s);\n", list(str(schemaName)))
	out.WriteString("ENDSEC;\nDATA;\n")
	out.Write(e.w.buf.Bytes())
	out.WriteString("ENDSEC;\nEND-ISO-10303-21;\n")

	if !opts.Compress {
		return out.Bytes(), nil
	}
	var z bytes.Buffer
	zw := gzip.NewWriter(&z)
	if _, err := zw.Write(out.Bytes()); err != nil {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Err: fmt.Errorf("compress: %w", err)}
	}
	if err := zw.Close(); err != nil {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Err: fmt.Errorf("compress: %w", err)}
	}
	return z.Bytes(), nil
}

// Import builds a new document from an exchange file, compressed or not.
//
// The import is shallow: every leaf placement becomes an instance-label
// directly under the assembly root, carrying its composed world transform.
// A part product that no assembly uses gets one instance at the origin.
// Assembly products leave no label behind, so their names and colors are
// dropped; an instance keeps only the color of its own occurrence. On
// failure the partially built document is closed and an ImportFailure error
// is returned.
func Import(data []byte, k kernel.Kernel, opts ...asm.Option) (*asm.Document, error) {
	def, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	doc := asm.New(k, opts...)
	if _, err := doc.Compile(def); err != nil {
		_ = doc.Close()
		return nil, &asm.Error{Kind: asm.KindImportFailure, Err: err}
	}
	doc.Logger().Debug("imported exchange file",
		zap.Int("parts", len(def.Parts)),
		zap.Int("instances", len(def.Nodes)),
	)
	return doc, nil
}

// inflate strips a gzip envelope if data has one.
func inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
