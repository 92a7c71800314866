package ingest

import (
	"encoding/csv"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
)

// Logical fields resolved from vendor spreadsheet headers. Vendors name their
// columns inconsistently so each field carries a set of known aliases matched
// case- and whitespace-insensitively.
const (
	FieldItemName      = "itemName"
	FieldAmount        = "amount"
	FieldAmountInStock = "amountInStock"
	FieldCoordinates   = "coordinates"
)

var fieldAliases = map[string][]string{
	FieldItemName:      {"itemname", "item name", "product", "name", "productname", "product name", "item"},
	FieldAmount:        {"amount", "price", "sellingprice", "selling price", "unitprice", "unit price", "cost"},
	FieldAmountInStock: {"amountinstock", "amount in stock", "quantity", "qty", "stock", "instock", "in stock"},
	FieldCoordinates:   {"coordinates", "location"},
}

// RawRow is one parsed spreadsheet row. Values keeps every original column so
// failed rows can be echoed back and the enricher can show the model the full
// row.
type RawRow struct {
	ItemName      string
	Amount        decimal.Decimal
	AmountInStock int
	Coordinates   string
	Values        map[string]string
}

// RowError pairs a rejected row with a human-readable reason.
type RowError struct {
	Row    map[string]string `json:"row"`
	Reason string            `json:"reason"`
}

// ParseRows turns raw delimited text into normalized rows. The first record is
// the header. Rows that cannot resolve an item name are pushed to the error
// list; parsing never aborts the batch for one bad row. A batch that parses to
// zero usable rows fails with a single top-level error.
func ParseRows(fileContent string) ([]RawRow, []RowError, error) {
	reader := csv.NewReader(strings.NewReader(fileContent))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable file content")
	}
	if len(records) < 2 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no data rows found in file")
	}

	headers := records[0]
	fields := resolveHeaders(headers)
	if _, ok := fields[FieldItemName]; !ok {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no item name column found in header")
	}

	var rows []RawRow
	var rowErrors []RowError
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		values := recordValues(headers, record)
		row, reason := buildRow(record, values, fields)
		if reason != "" {
			rowErrors = append(rowErrors, RowError{Row: values, Reason: reason})
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, rowErrors, pkgerrors.New(pkgerrors.CodeValidation, "no valid rows found in file")
	}
	return rows, rowErrors, nil
}

// resolveHeaders maps each logical field to the index of the first header that
// matches one of its aliases. Currency-prefixed amount headers ("₦price",
// "$ amount") resolve too.
func resolveHeaders(headers []string) map[string]int {
	fields := make(map[string]int, len(fieldAliases))
	for i, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}
		for field, aliases := range fieldAliases {
			if _, taken := fields[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					fields[field] = i
					break
				}
			}
		}
	}
	return fields
}

// normalizeHeader lowercases a header, collapses inner whitespace, and strips
// leading currency symbols and punctuation.
func normalizeHeader(header string) string {
	trimmed := strings.TrimSpace(strings.ToLower(header))
	trimmed = strings.TrimLeftFunc(trimmed, func(r rune) bool {
		return unicode.IsSymbol(r) || unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return strings.Join(strings.Fields(trimmed), " ")
}

func recordValues(headers, record []string) map[string]string {
	values := make(map[string]string, len(headers))
	for i, header := range headers {
		if i >= len(record) {
			break
		}
		key := strings.TrimSpace(header)
		if key == "" {
			continue
		}
		values[key] = strings.TrimSpace(record[i])
	}
	return values
}

func buildRow(record []string, values map[string]string, fields map[string]int) (RawRow, string) {
	row := RawRow{Values: values}

	row.ItemName = fieldValue(record, fields, FieldItemName)
	if row.ItemName == "" {
		return row, "row is missing an item name"
	}

	amountRaw := fieldValue(record, fields, FieldAmount)
	if amountRaw != "" {
		amount, err := ParseAmount(amountRaw)
		if err != nil {
			return row, "unparseable amount: " + amountRaw
		}
		row.Amount = amount
	}

	if stockRaw := fieldValue(record, fields, FieldAmountInStock); stockRaw != "" {
		stock, err := strconv.Atoi(strings.ReplaceAll(stockRaw, ",", ""))
		if err != nil || stock < 0 {
			return row, "unparseable stock quantity: " + stockRaw
		}
		row.AmountInStock = stock
	}

	row.Coordinates = fieldValue(record, fields, FieldCoordinates)
	return row, ""
}

// FieldFromValues resolves a logical field from an already-keyed row map, for
// callers that receive rows as maps instead of positional records.
func FieldFromValues(values map[string]string, field string) string {
	aliases, ok := fieldAliases[field]
	if !ok {
		return ""
	}
	for key, value := range values {
		normalized := normalizeHeader(key)
		for _, alias := range aliases {
			if normalized == alias {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func fieldValue(record []string, fields map[string]int, field string) string {
	idx, ok := fields[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// ParseAmount accepts plain numbers plus vendor formatting like "₦1,200.50"
// or "NGN 500".
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimLeftFunc(cleaned, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-' && r != '.'
	})
	return decimal.NewFromString(cleaned)
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
