// Package parser turns files and web pages into (text, metadata) chunks
// ready for indexing.
package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Options controls chunking. Source overrides the file name recorded in
// metadata, e.g. the original name of an upload.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Source       string
}

func NewOptions(cfg config.RAGConfig) Options {
	return Options{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = min(defaultChunkOverlap, o.ChunkSize/2)
	}
	return o
}

// page is one unit of a document before chunking: a PDF page, a slide, a
// sheet, or the whole text for unpaged formats.
type page struct {
	number int
	text   string
}

// ParseFile reads the file at path according to its extension.
func ParseFile(path string, opts Options) ([]models.Chunk, error) {
	opts = opts.withDefaults()
	if opts.Source == "" {
		opts.Source = filepath.Base(path)
	}

	ext := strings.ToLower(filepath.Ext(opts.Source))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(path))
	}

	var pages []page
	var err error
	switch ext {
	case ".pdf":
		pages, err = parsePDF(path)
	case ".docx":
		pages, err = parseDOCX(path)
	case ".pptx":
		pages, err = parsePPTX(path)
	case ".xlsx":
		pages, err = parseXLSX(path)
	case ".xlsm":
		pages, err = parseXLSM(path)
	case ".md", ".markdown":
		pages, err = parseMarkdownFile(path)
	case ".txt":
		pages, err = parseText(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opts.Source, err)
	}

	docType := strings.TrimPrefix(ext, ".")
	var chunks []models.Chunk
	for _, p := range pages {
		chunks = append(chunks, buildChunks(p.text, opts, models.Metadata{
			models.MetaSource: opts.Source,
			models.MetaPage:   strconv.Itoa(p.number),
			models.MetaType:   docType,
		})...)
	}

	log.Debug().Str("source", opts.Source).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Parsed file")
	return chunks, nil
}

func parsePDF(path string) ([]page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []page
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, page{number: i, text: text})
	}
	return pages, nil
}

func parseDOCX(path string) ([]page, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	text, err := xmlText(strings.NewReader(r.Editable().GetContent()))
	if err != nil {
		return nil, err
	}
	return []page{{number: 1, text: text}}, nil
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func parsePPTX(path string) ([]page, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var pages []page
	for _, file := range zr.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		text, err := xmlText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", n, err)
		}
		pages = append(pages, page{number: n, text: text})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })
	return pages, nil
}

func parseXLSX(path string) ([]page, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var pages []page
	for i, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = append(pages, page{number: i + 1, text: sheetText(sheet.Name, rows)})
	}
	return pages, nil
}

// parseXLSM uses excelize, which reads macro-enabled workbooks.
func parseXLSM(path string) ([]page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []page
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		pages = append(pages, page{number: i + 1, text: sheetText(name, rows)})
	}
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sheet: %s\n", name)
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	return b.String()
}

func parseText(path string) ([]page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []page{{number: 1, text: string(data)}}, nil
}

func parseMarkdownFile(path string) ([]page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []page{{number: 1, text: MarkdownText(data)}}, nil
}

// ParseReader handles uploads that are not on disk yet by spooling them to a
// temporary file named like source.
func ParseReader(r io.Reader, source string, opts Options) ([]models.Chunk, error) {
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(source))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	opts.Source = source
	return ParseFile(tmp.Name(), opts)
}

// Texts and Metadatas split chunks into the parallel slices UpsertChunks takes.
func Texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func Metadatas(chunks []models.Chunk) []models.Metadata {
	out := make([]models.Metadata, len(chunks))
	for i, c := range chunks {
		out[i] = c.Metadata
	}
	return out
}
