package warehouse

import (
	"bytes"
	"strings"

	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/errors"
)

// NullToken is the reserved literal that denotes SQL NULL on the bulk
// wire. A string cell carrying the literal text is rendered the same
// way and loads as NULL; upstream extraction never emits it.
const NullToken = "None"

const (
	fieldDelimiter  = '|'
	recordTerminate = '\n'
)

// escapeField escapes a string cell for the delimited wire format.
// Backslashes are escaped before pipes so a literal pipe never gains a
// second level of escaping.
func escapeField(s string) string {
	if !strings.ContainsAny(s, "\\|\n") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "|", `\|`)
	// Escape the record terminator itself; the ingest protocol takes
	// the character after the escape literally.
	s = strings.ReplaceAll(s, "\n", "\\\n")
	return s
}

// EncodeRow appends one pipe-delimited, newline-terminated record to
// buf. NULL cells render as the NullToken; cell kinds outside the value
// domain abort the batch with an encoding error.
func EncodeRow(buf *bytes.Buffer, row batch.Row) error {
	for i, cell := range row {
		if i > 0 {
			buf.WriteByte(fieldDelimiter)
		}
		field, err := encodeCell(cell)
		if err != nil {
			return err
		}
		buf.WriteString(field)
	}
	buf.WriteByte(recordTerminate)
	return nil
}

// EncodeRows encodes a whole deduplicated, aligned batch into buf.
func EncodeRows(buf *bytes.Buffer, rows []batch.Row) error {
	for i, row := range rows {
		if err := EncodeRow(buf, row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeEncoding, "malformed row").
				WithDetail("row", i)
		}
	}
	return nil
}

func encodeCell(cell interface{}) (string, error) {
	if batch.IsNull(cell) {
		return NullToken, nil
	}
	if s, ok := cell.(string); ok {
		return escapeField(s), nil
	}
	formatted := batch.Format(cell)
	if formatted == "" {
		return "", errors.Newf(errors.ErrorTypeEncoding,
			"cell of type %T is outside the wire value domain", cell)
	}
	return formatted, nil
}
