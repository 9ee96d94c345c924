package extractors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want domain.BlockType
	}{
		{"Merkezi yönetim bütçe açığı geriledi.", domain.BlockTypeParagraph},
		{"Tablo 3: Bütçe Gerçekleşmeleri", domain.BlockTypeCaption},
		{"Şekil 1 - TÜFE yıllık değişim", domain.BlockTypeCaption},
		{"Kaynak: Hazine ve Maliye Bakanlığı", domain.BlockTypeCaption},
		{"Gelirler 2.100,5 2.450,0 %16,6", domain.BlockTypeTable},
		{"2023 2024 2025", domain.BlockTypeTable},
		{"Enflasyon 2024 yılında %44,4 oldu ve beklentiler iyileşti", domain.BlockTypeParagraph},
		{"%", domain.BlockTypeParagraph},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLine(tt.line))
		})
	}
}

func TestSplitBlocks(t *testing.T) {
	text := "Bütçe dengesi iyileşti.\nGelirler arttı.\n\n" +
		"Tablo 1: Özet\n" +
		"Gelirler 2.100 2.450\n" +
		"Giderler 2.600 2.900\n" +
		"Kaynak: HMB\n" +
		"Sonuç olarak açık daraldı."

	blocks := SplitBlocks("doc-1", 3, text)
	require.Len(t, blocks, 5)

	assert.Equal(t, domain.BlockTypeParagraph, blocks[0].Type)
	assert.Equal(t, "Bütçe dengesi iyileşti.\nGelirler arttı.", blocks[0].Text)
	assert.Equal(t, domain.BlockTypeCaption, blocks[1].Type)
	assert.Equal(t, domain.BlockTypeTable, blocks[2].Type)
	assert.Equal(t, "Gelirler 2.100 2.450\nGiderler 2.600 2.900", blocks[2].Text)
	assert.Equal(t, domain.BlockTypeCaption, blocks[3].Type)
	assert.Equal(t, domain.BlockTypeParagraph, blocks[4].Type)

	for _, b := range blocks {
		assert.Equal(t, "doc-1", b.DocumentID)
		assert.Equal(t, 3, b.Page)
	}
}

func TestSplitBlocks_Empty(t *testing.T) {
	assert.Nil(t, SplitBlocks("d", 1, ""))
	assert.Nil(t, SplitBlocks("d", 1, " \n\t\n"))
}

func TestSplitBlocks_ConsecutiveCaptionsStaySeparate(t *testing.T) {
	blocks := SplitBlocks("d", 1, "Grafik 1: A\nGrafik 2: B")
	require.Len(t, blocks, 2)
	assert.Equal(t, "Grafik 1: A", blocks[0].Text)
	assert.Equal(t, "Grafik 2: B", blocks[1].Text)
}
