package pipeline

import (
	"context"
	"os"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/extract"
	"github.com/tilde-sec/threatsift/internal/models"
	"github.com/tilde-sec/threatsift/internal/parser"
	"github.com/tilde-sec/threatsift/internal/repo"
	"github.com/tilde-sec/threatsift/internal/validate"
)

// Result is everything one file produced.
type Result struct {
	Document  *models.Document
	Addresses []*models.CryptoAddress
	Incidents []*models.Incident
	Iocs      []*models.Ioc
	Parsed    *parser.ParsedMarkdown
}

// Processor turns a single markdown file into a Result. It is
// stateless and safe for concurrent use.
type Processor struct {
	pipelineCfg   config.PipelineConfig
	extractionCfg config.ExtractionConfig
	crypto        *extract.CryptoExtractor
	incidents     *extract.IncidentExtractor
	iocs          *extract.IocExtractor
}

func NewProcessor(pipelineCfg config.PipelineConfig, extractionCfg config.ExtractionConfig) *Processor {
	return &Processor{
		pipelineCfg:   pipelineCfg,
		extractionCfg: extractionCfg,
		crypto:        extract.NewCryptoExtractor(),
		incidents:     extract.NewIncidentExtractor(),
		iocs:          extract.NewIocExtractor(),
	}
}

// Process validates, reads, parses and extracts one file. The size
// check here is authoritative: the scanner's ceiling is advisory
// because the file can grow between scan and read.
func (p *Processor) Process(ctx context.Context, file repo.FileMeta, repositoryURL string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate.FilePath(file.Path); err != nil {
		return nil, err
	}
	if err := validate.MarkdownExtension(file.Path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, errs.FileOp("read", file.Path, err)
	}
	if maxSize := p.pipelineCfg.MaxFileSizeBytes(); maxSize > 0 && int64(len(data)) > maxSize {
		return nil, errs.Validation("file_size", "%s is %d bytes, limit is %d", file.Path, len(data), maxSize)
	}

	raw := string(data)
	if err := validate.ContentNotEmpty(raw); err != nil {
		return nil, &errs.ParseError{File: file.Path, Message: "empty content"}
	}

	// Identity is the digest of the bytes on disk, so change detection
	// and insert dedup agree even when normalization rewrites content.
	doc := models.NewDocument(file.Path, file.RelativePath, repositoryURL, raw, int64(len(data)), file.Modified)
	doc.Attribution = repo.Attribution(file.RelativePath)
	doc.Topic = repo.Topic(file.RelativePath)

	content := raw
	if p.extractionCfg.NormalizeMarkdown {
		content = parser.Normalize(raw)
		doc.Content = content
		doc.MarkNormalized()
	}

	parsed, err := parser.Parse(file.RelativePath, content)
	if err != nil {
		return nil, err
	}

	result := &Result{Document: doc, Parsed: parsed}

	if p.extractionCfg.ExtractCryptoAddresses {
		for _, addr := range p.crypto.Extract(parsed.PlainText) {
			result.Addresses = append(result.Addresses, addr.WithDocumentID(doc.ID))
		}
	}
	if p.extractionCfg.ExtractIncidents {
		// Incidents come from the raw markdown so section headings are
		// still visible.
		for _, incident := range p.incidents.Extract(content) {
			result.Incidents = append(result.Incidents, incident.WithDocumentID(doc.ID))
		}
	}
	if p.extractionCfg.ExtractIocs {
		for _, ioc := range p.iocs.Extract(parsed.PlainText) {
			result.Iocs = append(result.Iocs, ioc.WithDocumentID(doc.ID))
		}
	}

	return result, nil
}
