package extractors

import (
	"strings"
	"unicode"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// captionPrefixes mark figure and table captions in Turkish reports.
var captionPrefixes = []string{"Tablo", "TABLO", "Grafik", "GRAFİK", "Şekil", "ŞEKİL", "Kaynak:", "KAYNAK:"}

// minTableNumbers is how many numeric fields a line needs to count as a table row.
const minTableNumbers = 2

// SplitBlocks groups the lines of one page into typed blocks. Blank lines
// end a paragraph. Consecutive table rows form one table block. Every
// caption line is its own block. Whitespace-only pages yield nil.
func SplitBlocks(documentID string, page int, text string) []domain.TextBlock {
	var (
		blocks  []domain.TextBlock
		current []string
		kind    domain.BlockType
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, domain.TextBlock{
			DocumentID: documentID,
			Page:       page,
			Text:       strings.Join(current, "\n"),
			Type:       kind,
		})
		current = nil
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flush()
			continue
		}

		lineKind := ClassifyLine(line)
		if lineKind != kind || lineKind == domain.BlockTypeCaption {
			flush()
			kind = lineKind
		}
		current = append(current, line)
	}
	flush()

	return blocks
}

// ClassifyLine reports the block type a single line belongs to.
func ClassifyLine(line string) domain.BlockType {
	for _, p := range captionPrefixes {
		if strings.HasPrefix(line, p) {
			return domain.BlockTypeCaption
		}
	}
	if isTableRow(line) {
		return domain.BlockTypeTable
	}
	return domain.BlockTypeParagraph
}

// isTableRow reports whether most fields on the line are numbers, as in
// "Gelirler 2.100,5 2.450,0 %16,6".
func isTableRow(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < minTableNumbers {
		return false
	}
	numeric := 0
	for _, f := range fields {
		if isNumeric(f) {
			numeric++
		}
	}
	return numeric >= minTableNumbers && numeric*2 >= len(fields)
}

func isNumeric(field string) bool {
	field = strings.Trim(field, "%()+-–")
	if field == "" {
		return false
	}
	digits := 0
	for _, r := range field {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}
