// Package container unwraps the nested transport format of NAV journal
// files: a ZIP archive holding a single PKCS#7 (p7b) signed container,
// which in turn embeds the plain journal XML.
//
// Extraction runs two ranked strategies behind one interface: the
// structural CMS unwrap, and a tolerant pattern scan over the raw
// container bytes for environments where the DER encoding cannot be
// parsed. Results flag which path produced them.
package container

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.mozilla.org/pkcs7"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/model"
)

var logger = logrus.WithField("component", "nav.container")

// Result is an extracted journal document. Verified is true when the
// XML came out of the parsed CMS structure rather than the byte scan.
type Result struct {
	XML      []byte
	Verified bool
}

// Extractor recovers the journal XML from one signed container.
type Extractor interface {
	Extract(data []byte) (*Result, error)
}

// Journal is the fully unwrapped content of one downloaded attachment.
type Journal struct {
	// Name is the container member name inside the archive, which
	// carries the AP number, tax number, timestamp and file number.
	Name     string
	XML      []byte
	Verified bool
}

// Member is one file inside the journal archive.
type Member struct {
	Name string
	Data []byte
}

// UnwrapArchive decompresses a journal attachment and returns the
// embedded signed container. Exactly one p7b member is expected; when
// NAV packs more, the first is used and a warning logged.
func UnwrapArchive(data []byte) (*Member, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(nav.ErrCorruptArchive, err.Error())
	}

	var containers []*zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".p7b") {
			containers = append(containers, f)
		}
	}
	if len(containers) == 0 {
		return nil, errors.Wrap(nav.ErrCorruptArchive, "archive holds no signed container")
	}
	if len(containers) > 1 {
		logger.WithField("members", len(containers)).
			Warn("Archive holds more than one signed container, using the first")
	}

	f := containers[0]
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(nav.ErrCorruptArchive, err.Error())
	}
	defer func() { _ = rc.Close() }()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(nav.ErrCorruptArchive, err.Error())
	}
	return &Member{Name: f.Name, Data: content}, nil
}

// cmsExtractor parses the container as a CMS SignedData structure and
// takes its embedded content. The signature itself is not verified;
// only the content is consumed.
type cmsExtractor struct{}

func (cmsExtractor) Extract(data []byte) (*Result, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing CMS structure: %w", err)
	}
	if len(p7.Content) == 0 {
		return nil, fmt.Errorf("CMS structure has no embedded content")
	}
	if !bytes.Contains(p7.Content, []byte("<?xml")) {
		return nil, fmt.Errorf("CMS content is not an XML document")
	}
	return &Result{XML: p7.Content, Verified: true}, nil
}

// Journal documents use a ROWS root element; the generic patterns back
// it up should NAV change the schema.
var (
	rowsPattern    = regexp.MustCompile(`(?si)(<\?xml[^>]*\?>.*?<ROWS\b[^>]*>.*?</ROWS>)`)
	rootTagPattern = regexp.MustCompile(`<\?xml[^>]*\?>\s*<([A-Za-z][A-Za-z0-9_]*)\b`)
)

// patternExtractor scans the raw container bytes for the journal XML
// without interpreting the CMS wrapper at all.
type patternExtractor struct{}

func (patternExtractor) Extract(data []byte) (*Result, error) {
	if m := rowsPattern.Find(data); m != nil {
		return &Result{XML: m, Verified: false}, nil
	}

	if root := rootTagPattern.FindSubmatch(data); root != nil {
		tag := regexp.QuoteMeta(string(root[1]))
		generic, err := regexp.Compile(`(?si)(<\?xml[^>]*\?>.*?<` + tag + `\b[^>]*>.*?</` + tag + `>)`)
		if err == nil {
			if m := generic.Find(data); m != nil {
				return &Result{XML: m, Verified: false}, nil
			}
		}
	}
	return nil, fmt.Errorf("no XML document found in container bytes")
}

// Pipeline runs the ranked extractors over one container.
type Pipeline struct {
	extractors []Extractor
}

func NewPipeline() *Pipeline {
	return &Pipeline{extractors: []Extractor{cmsExtractor{}, patternExtractor{}}}
}

func (p *Pipeline) Extract(data []byte) (*Result, error) {
	var firstErr error
	for i, e := range p.extractors {
		res, err := e.Extract(data)
		if err == nil {
			if i > 0 {
				logger.Warnf("Structural container unwrap failed (%v), fell back to pattern extraction", firstErr)
			}
			return res, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, errors.Wrap(nav.ErrContainerExtraction, firstErr.Error())
}

// ExtractJournal is the full pipeline for one downloaded attachment:
// archive unwrap, then container extraction.
func ExtractJournal(att model.Attachment) (*Journal, error) {
	member, err := UnwrapArchive(att.Data)
	if err != nil {
		return nil, err
	}

	res, err := NewPipeline().Extract(member.Data)
	if err != nil {
		return nil, err
	}

	return &Journal{Name: member.Name, XML: res.XML, Verified: res.Verified}, nil
}
