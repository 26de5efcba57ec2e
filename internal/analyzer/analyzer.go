// Package analyzer implements the first pipeline stage: fingerprinting an
// uploaded file from a bounded prefix read, without fully parsing it.
package analyzer

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// prefixSize bounds how much of the file the analyzer reads. A few KB is
// enough to vote on a delimiter and classify the header row.
const prefixSize = 8 * 1024

const sampleRowCount = 5

var delimiterCandidates = []rune{',', ';', '\t', '|'}

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Analyzer fingerprints uploaded files.
type Analyzer struct {
	maxFileSize int64
	log         logger.Logger
}

// New creates an analyzer with the configured file size limit.
func New(maxFileSize int64, log logger.Logger) *Analyzer {
	return &Analyzer{maxFileSize: maxFileSize, log: log.WithComponent("analyzer")}
}

// Analyze inspects the file referenced by the run and returns its structural
// summary. A structural error (missing file, empty file, unknown type) is
// returned as a terminal pipeline error; the caller fails the run.
func (a *Analyzer) Analyze(run domain.ImportRun) (*domain.FileInfo, error) {
	stat, err := os.Stat(run.FilePath)
	if err != nil {
		return nil, importerrors.Structural("analyzing", fmt.Sprintf("file not found: %s", run.FilePath))
	}

	info := &domain.FileInfo{
		Name:          filepath.Base(run.FilePath),
		Size:          stat.Size(),
		FormattedSize: formatSize(stat.Size()),
		Extension:     strings.TrimPrefix(strings.ToLower(filepath.Ext(run.FilePath)), "."),
	}

	if stat.Size() == 0 {
		info.ValidationErrors = append(info.ValidationErrors, "file is empty")
		return info, importerrors.Structural("analyzing", "file is empty")
	}
	if a.maxFileSize > 0 && stat.Size() > a.maxFileSize {
		info.ValidationErrors = append(info.ValidationErrors,
			fmt.Sprintf("file size %s exceeds limit %s", info.FormattedSize, formatSize(a.maxFileSize)))
		return info, importerrors.Structural("analyzing",
			fmt.Sprintf("file size %s exceeds limit %s", info.FormattedSize, formatSize(a.maxFileSize)))
	}

	prefix, err := readPrefix(run.FilePath)
	if err != nil {
		return info, importerrors.Transient(err, "analyzing", "failed to read file prefix")
	}

	mime := mimetype.Detect(prefix)
	info.MimeType = mime.String()
	info.Encoding = detectEncoding(prefix)
	info.Type = detectType(info.Extension, mime, prefix)

	switch info.Type {
	case domain.FileTypeCSV:
		a.analyzeCSV(info, prefix)
	case domain.FileTypeExcel:
		a.analyzeExcel(info, run.FilePath)
	case domain.FileTypeXML:
		a.analyzeXML(info, prefix)
	default:
		info.ValidationErrors = append(info.ValidationErrors, "unsupported file type")
		return info, importerrors.Structural("analyzing",
			fmt.Sprintf("unsupported file type: extension %q, mime %s", info.Extension, info.MimeType))
	}

	if info.EstimatedRows == 0 {
		info.ValidationErrors = append(info.ValidationErrors, "no data rows detected")
		return info, importerrors.Structural("analyzing", "no data rows detected")
	}

	a.log.WithFields(logger.Fields{
		"file":           info.Name,
		"type":           info.Type,
		"encoding":       info.Encoding,
		"estimated_rows": info.EstimatedRows,
	}).Info("file analyzed")

	return info, nil
}

func readPrefix(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, prefixSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

// detectEncoding distinguishes the encodings seen in regional accounting
// exports. Anything that is not valid UTF-8 or UTF-16 is treated as
// Windows-1252, which subsumes ISO-8859-1 for the byte ranges involved.
func detectEncoding(prefix []byte) string {
	if bytes.HasPrefix(prefix, byteOrderMark) {
		return "UTF-8"
	}
	if bytes.HasPrefix(prefix, []byte{0xFF, 0xFE}) || bytes.HasPrefix(prefix, []byte{0xFE, 0xFF}) {
		return "UTF-16"
	}
	if utf8.Valid(prefix) {
		return "UTF-8"
	}
	return "Windows-1252"
}

func detectType(extension string, mime *mimetype.MIME, prefix []byte) domain.FileType {
	switch extension {
	case "csv", "txt":
		return domain.FileTypeCSV
	case "xlsx", "xls":
		return domain.FileTypeExcel
	case "xml":
		return domain.FileTypeXML
	}

	switch {
	case mime.Is("text/csv"):
		return domain.FileTypeCSV
	case mime.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
		mime.Is("application/vnd.ms-excel"):
		return domain.FileTypeExcel
	case mime.Is("text/xml"), mime.Is("application/xml"):
		return domain.FileTypeXML
	}

	if bytes.HasPrefix(bytes.TrimLeft(prefix, " \t\r\n"), []byte("<?xml")) {
		return domain.FileTypeXML
	}
	return domain.FileTypeUnknown
}

func (a *Analyzer) analyzeCSV(info *domain.FileInfo, prefix []byte) {
	content := bytes.TrimPrefix(prefix, byteOrderMark)
	lines := splitLines(content)
	if len(lines) == 0 {
		return
	}

	delimiter := DetectDelimiter(lines[0])
	info.Structure.Delimiter = string(delimiter)

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return
	}

	info.Structure.HasHeader = looksLikeHeader(records[0])
	info.Structure.Columns = len(records[0])

	dataStart := 0
	if info.Structure.HasHeader {
		info.Headers = trimAll(records[0])
		dataStart = 1
	} else {
		info.ValidationErrors = append(info.ValidationErrors, "no header row detected")
	}

	for i := dataStart; i < len(records) && len(info.SampleData) < sampleRowCount; i++ {
		info.SampleData = append(info.SampleData, records[i])
	}

	info.EstimatedRows = estimateRows(info.Size, lines, dataStart)
}

func (a *Analyzer) analyzeExcel(info *domain.FileInfo, path string) {
	headers, sample, rowCount, err := readExcelSummary(path, sampleRowCount)
	if err != nil {
		info.ValidationErrors = append(info.ValidationErrors, fmt.Sprintf("failed to inspect spreadsheet: %v", err))
		return
	}
	info.Structure.HasHeader = true
	info.Structure.Columns = len(headers)
	info.Headers = headers
	info.SampleData = sample
	info.EstimatedRows = rowCount
}

func (a *Analyzer) analyzeXML(info *domain.FileInfo, prefix []byte) {
	decoder := xml.NewDecoder(bytes.NewReader(prefix))
	var rootElement string
	recordCount := 0
	depth := 0
	recordName := ""
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				rootElement = t.Name.Local
			}
			if depth == 2 {
				if recordName == "" {
					recordName = t.Name.Local
				}
				if t.Name.Local == recordName {
					recordCount++
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	info.Structure.RootElement = rootElement
	info.Structure.HasHeader = false
	info.EstimatedRows = recordCount
	if rootElement == "" {
		info.ValidationErrors = append(info.ValidationErrors, "no root element detected")
	}
}

// DetectDelimiter votes on the first line: the candidate occurring most
// often wins, comma on a tie.
func DetectDelimiter(line []byte) rune {
	best := ','
	bestCount := 0
	for _, candidate := range delimiterCandidates {
		count := bytes.Count(line, []byte(string(candidate)))
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// looksLikeHeader classifies a row as a header when it holds more
// non-numeric than numeric cells.
func looksLikeHeader(row []string) bool {
	numeric := 0
	nonNumeric := 0
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64); err == nil {
			numeric++
		} else {
			nonNumeric++
		}
	}
	return nonNumeric > numeric
}

// estimateRows extrapolates from the average line length in the prefix.
func estimateRows(fileSize int64, lines [][]byte, headerLines int) int {
	if len(lines) == 0 {
		return 0
	}
	var totalLen int
	for _, line := range lines {
		totalLen += len(line) + 1
	}
	avg := totalLen / len(lines)
	if avg == 0 {
		return 0
	}
	estimate := int(fileSize)/avg - headerLines
	if estimate < 0 {
		estimate = 0
	}
	return estimate
}

func splitLines(content []byte) [][]byte {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))
	var lines [][]byte
	for _, line := range bytes.Split(normalized, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
