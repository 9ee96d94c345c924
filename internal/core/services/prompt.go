package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

type keywordRule[T any] struct {
	value    T
	keywords []string
}

// Checked in order; the first rule with a matching keyword wins.
var queryTypeRules = []keywordRule[domain.QueryType]{
	{domain.QueryTypeAnalytical, []string{"neden", "nasıl", "sebep", "analiz", "değerlendirme"}},
	{domain.QueryTypeComparative, []string{"karşılaştır", "fark", "arasında", "hangisi", "daha"}},
	{domain.QueryTypeStatistical, []string{"kaç", "ne kadar", "yüzde", "oran", "istatistik"}},
	{domain.QueryTypeExplanatory, []string{"açıkla", "anlat", "nedir", "ne demek", "tanımla"}},
}

var documentTypeRules = []keywordRule[domain.DocumentType]{
	{domain.DocumentTypeBudgetAnalysis, []string{"bütçe", "mali", "gelir", "gider", "ödenek"}},
	{domain.DocumentTypeEconomicReport, []string{"ekonomi", "gsyh", "büyüme", "üretim"}},
	{domain.DocumentTypeFinancialBulletin, []string{"günlük", "haftalık", "aylık", "bülten"}},
}

var documentInstructions = map[domain.DocumentType]string{
	domain.DocumentTypeEconomicReport:    "📊 Ekonomik göstergeleri analiz et ve trendleri açıkla",
	domain.DocumentTypeBudgetAnalysis:    "💰 Bütçe kalemlerini detaylandır ve mali durumu değerlendir",
	domain.DocumentTypeFinancialBulletin: "📈 Güncel finansal gelişmeleri özetle ve önemli noktaları vurgula",
	domain.DocumentTypeGeneral:           "📋 Genel bilgileri düzenli şekilde sun",
}

var queryInstructions = map[domain.QueryType]string{
	domain.QueryTypeFactual:     "🔍 Somut bilgileri net şekilde sun",
	domain.QueryTypeAnalytical:  "🧠 Sebep-sonuç ilişkilerini açıkla ve analiz et",
	domain.QueryTypeComparative: "⚖️ Karşılaştırmaları tablo halinde göster",
	domain.QueryTypeStatistical: "📊 Sayısal verileri vurgula ve yorumla",
	domain.QueryTypeExplanatory: "💡 Kavramları basit dille açıkla",
}

type glossaryEntry struct {
	term        string
	explanation string
}

var glossary = []glossaryEntry{
	{"TÜFE", "Tüketici Fiyat Endeksi - Hanehalkının satın aldığı mal ve hizmetlerin fiyat değişimini ölçer"},
	{"ÜFE", "Üretici Fiyat Endeksi - Üreticilerin sattığı mal ve hizmetlerin fiyat değişimini ölçer"},
	{"GSYH", "Gayri Safi Yurt İçi Hasıla - Bir ülkenin belirli dönemde ürettiği mal ve hizmetlerin toplam değeri"},
	{"TCMB", "Türkiye Cumhuriyet Merkez Bankası - Türkiye'nin merkez bankası"},
	{"Bütçe Dengesi", "Devlet gelirlerinin giderlerden fazla (fazla) veya az (açık) olması durumu"},
	{"Cari Açık", "Bir ülkenin ithalatının ihracatından fazla olması durumu"},
	{"Enflasyon", "Genel fiyat seviyesindeki sürekli artış"},
	{"Deflasyon", "Genel fiyat seviyesindeki sürekli azalış"},
}

var languageNames = map[string]string{
	"tr": "Türkçe",
	"en": "İngilizce",
	"de": "Almanca",
	"fr": "Fransızca",
}

const (
	contextEllipsis = "..."
	snippetRunes    = 200

	// tableDigitRatio is the share of digits among visible runes above
	// which a chunk is labelled as tabular.
	tableDigitRatio = 0.2
)

// Prompt is an assembled completion prompt.
type Prompt struct {
	Text         string
	Grounded     bool
	// ContextHits is how many leading hits made it into the context.
	ContextHits  int
	QueryType    domain.QueryType
	DocumentType domain.DocumentType
}

// PromptAssembler builds grounded and fallback prompts from templates.
type PromptAssembler struct {
	prompts         driven.PromptStore
	maxContextRunes int
}

// NewPromptAssembler creates an assembler. maxContextRunes caps the
// retrieved context; zero or less uses the default.
func NewPromptAssembler(prompts driven.PromptStore, maxContextRunes int) *PromptAssembler {
	if maxContextRunes <= 0 {
		maxContextRunes = domain.DefaultMaxContextRunes
	}
	return &PromptAssembler{prompts: prompts, maxContextRunes: maxContextRunes}
}

// Build assembles the prompt for question. No hits selects the fallback
// template, which carries no context and no citations.
func (a *PromptAssembler) Build(question string, hits []domain.ScoredChunk, lang string) (*Prompt, error) {
	system, err := a.prompts.Load(driven.PromptSystem)
	if err != nil {
		return nil, fmt.Errorf("load system prompt: %w", err)
	}
	langName := LanguageName(lang)
	queryType := DetectQueryType(question)

	if len(hits) == 0 {
		tmpl, err := a.prompts.Load(driven.PromptFallback)
		if err != nil {
			return nil, fmt.Errorf("load fallback prompt: %w", err)
		}
		return &Prompt{
			Text:         system + "\n\n" + fmt.Sprintf(tmpl, question, langName),
			QueryType:    queryType,
			DocumentType: domain.DocumentTypeGeneral,
		}, nil
	}

	tmpl, err := a.prompts.Load(driven.PromptGrounded)
	if err != nil {
		return nil, fmt.Errorf("load grounded prompt: %w", err)
	}
	context, used := FormatContext(hits, a.maxContextRunes)
	docType := DetectDocumentType(context)
	instructions := fmt.Sprintf("🎯 ÖZEL TALİMATLAR:\n%s\n%s\n",
		documentInstructions[docType], queryInstructions[queryType])

	return &Prompt{
		Text: system + "\n\n" + fmt.Sprintf(tmpl,
			instructions, GlossarySection(context), context, question, langName),
		Grounded:     true,
		ContextHits:  used,
		QueryType:    queryType,
		DocumentType: docType,
	}, nil
}

// DetectQueryType classifies a question by Turkish keywords.
func DetectQueryType(question string) domain.QueryType {
	return matchRules(turkishLower(question), queryTypeRules, domain.QueryTypeFactual)
}

// DetectDocumentType classifies retrieved context by Turkish keywords.
func DetectDocumentType(context string) domain.DocumentType {
	return matchRules(turkishLower(context), documentTypeRules, domain.DocumentTypeGeneral)
}

func matchRules[T any](text string, rules []keywordRule[T], fallback T) T {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.value
			}
		}
	}
	return fallback
}

// GlossarySection lists the domain terms that appear in context, or
// returns an empty string when none do.
func GlossarySection(context string) string {
	lower := turkishLower(context)
	var b strings.Builder
	for _, e := range glossary {
		if !strings.Contains(lower, turkishLower(e.term)) {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("📚 TEMEL KAVRAMLAR:\n")
		}
		fmt.Fprintf(&b, "• **%s**: %s\n", e.term, e.explanation)
	}
	return b.String()
}

// FormatContext renders hits in rank order, one labelled block each, and
// returns how many leading hits it used. The first block that would push
// the context past maxRunes is dropped along with every later one. Only a
// first block that alone exceeds maxRunes is cut short.
func FormatContext(hits []domain.ScoredChunk, maxRunes int) (string, int) {
	var b strings.Builder
	size := 0
	for i, h := range hits {
		block := fmt.Sprintf("[Kaynak %d - %s - Sayfa %d - Benzerlik: %.3f]\n%s",
			i+1, chunkLabel(h.Chunk.Text), h.Chunk.Page, h.Score, h.Chunk.Text)
		n := utf8.RuneCountInString(block)
		if i > 0 {
			n += 2
		}
		if size+n > maxRunes {
			if i == 0 {
				return truncateRunes(block, maxRunes, contextEllipsis), 1
			}
			return b.String(), i
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
		size += n
	}
	return b.String(), len(hits)
}

func chunkLabel(text string) string {
	digits, visible := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if visible > 0 && float64(digits)/float64(visible) >= tableDigitRatio {
		return "TABLO"
	}
	return "METİN"
}

// ConfidenceFooter renders the confidence line appended to answers.
func ConfidenceFooter(confidence float64) string {
	indicator := "🔴"
	switch {
	case confidence >= domain.ConfidenceHighThreshold:
		indicator = "🟢"
	case confidence >= domain.ConfidenceMediumThreshold:
		indicator = "🟡"
	}
	return fmt.Sprintf("\n\n---\n%s **Güven Düzeyi**: %.1f%%\n\n"+
		"💡 **Not**: Bu yanıt sadece verilen bağlam bilgilerine dayanmaktadır.",
		indicator, confidence*100)
}

// FallbackFooter is appended to answers produced without sources.
func FallbackFooter(confidence float64) string {
	return fmt.Sprintf("\n\n---\n🔴 **Güven Düzeyi**: %.1f%%\n\n"+
		"⚠️ **Not**: Yüklenen dokümanlarda ilgili bilgi bulunamadı; yanıt genel bilgiye dayanmaktadır.",
		confidence*100)
}

// LanguageName maps a language code to the name used in prompts.
func LanguageName(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = domain.DefaultLanguage
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// Phrases a model uses when the context does not hold the answer.
var declinePhrases = []string{
	"bağlamda yer almıyor",
	"bağlamda bulunmuyor",
	"bağlamda bu bilgi yok",
	"bilgi bulunamadı",
	"bilgi bulunmamaktadır",
	"bilgi yer almamaktadır",
	"does not contain",
	"not in the context",
	"no information",
}

// AnswerFactor scores a completion in [0, 1]. Short answers lose up to
// lengthWeight; an answer saying the context lacks the information is
// halved.
func AnswerFactor(answer string, lengthWeight float64) float64 {
	lengthWeight = clamp01(lengthWeight)
	lengthFactor := min(float64(utf8.RuneCountInString(strings.TrimSpace(answer)))/500, 1)
	factor := 1 - lengthWeight*(1-lengthFactor)

	lower := turkishLower(answer)
	for _, p := range declinePhrases {
		if strings.Contains(lower, p) {
			factor /= 2
			break
		}
	}
	return clamp01(factor)
}

// turkishLower lowercases with Turkish rules so İ and I fold correctly.
// A Caser is stateful, so each call gets its own.
func turkishLower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

func truncateRunes(s string, n int, suffix string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + suffix
}

func snippet(text string) string {
	return truncateRunes(strings.TrimSpace(text), snippetRunes, "…")
}
