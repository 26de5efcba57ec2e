package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
)

func (p *Parser) parseExcel(ctx context.Context, run domain.ImportRun) (Result, error) {
	f, err := excelize.OpenFile(run.FilePath)
	if err != nil {
		return Result{}, importerrors.Structural("parsing", fmt.Sprintf("failed to open xlsx: %v", err))
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, importerrors.Structural("parsing", "spreadsheet has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return Result{}, importerrors.Structural("parsing", fmt.Sprintf("failed to read xlsx rows: %v", err))
	}
	defer func() { _ = rows.Close() }()

	var headers []string
	collector := p.newCollector(run)
	for rows.Next() {
		record, rowErr := rows.Columns()
		if rowErr != nil {
			return Result{}, importerrors.Structural("parsing",
				fmt.Sprintf("malformed spreadsheet row %d: %v", collector.total+1, rowErr))
		}
		if headers == nil {
			headers = cleanRow(record)
			continue
		}
		if emptyRow(record) {
			continue
		}
		if err := collector.add(ctx, rowValues(headers, record)); err != nil {
			return Result{}, err
		}
	}
	if err := rows.Error(); err != nil {
		return Result{}, importerrors.Structural("parsing", fmt.Sprintf("failed to iterate xlsx rows: %v", err))
	}

	if err := collector.flush(ctx); err != nil {
		return Result{}, err
	}
	return Result{TotalRows: collector.total, Headers: headers}, nil
}

// parseXML walks element-per-record: every child of the root element is one
// logical row, its child elements become fields and its attributes become
// "@attr" fields.
func (p *Parser) parseXML(ctx context.Context, run domain.ImportRun) (Result, error) {
	f, err := os.Open(run.FilePath)
	if err != nil {
		return Result{}, importerrors.Transient(err, "parsing", "failed to open file")
	}
	defer f.Close()

	decoder := xml.NewDecoder(decodeReader(f, run.FileInfo.Encoding))
	collector := p.newCollector(run)
	headerSet := map[string]struct{}{}
	var headers []string

	recordHeader := func(name string) {
		if _, seen := headerSet[name]; !seen {
			headerSet[name] = struct{}{}
			headers = append(headers, name)
		}
	}

	depth := 0
	var current map[string]string
	var fieldName string
	var fieldValue strings.Builder

	for {
		token, tokenErr := decoder.Token()
		if tokenErr == io.EOF {
			break
		}
		if tokenErr != nil {
			return Result{}, importerrors.Structural("parsing",
				fmt.Sprintf("malformed xml near row %d: %v", collector.total+1, tokenErr))
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 2:
				current = map[string]string{}
				for _, attr := range t.Attr {
					name := "@" + attr.Name.Local
					current[name] = attr.Value
					recordHeader(name)
				}
			case 3:
				fieldName = t.Name.Local
				fieldValue.Reset()
			}
		case xml.CharData:
			if depth == 3 {
				fieldValue.Write(t)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				if current != nil && fieldName != "" {
					current[fieldName] = fieldValue.String()
					recordHeader(fieldName)
				}
				fieldName = ""
			case 2:
				if len(current) > 0 {
					if err := collector.add(ctx, current); err != nil {
						return Result{}, err
					}
				}
				current = nil
			}
			depth--
		}
	}

	if err := collector.flush(ctx); err != nil {
		return Result{}, err
	}
	return Result{TotalRows: collector.total, Headers: headers}, nil
}
