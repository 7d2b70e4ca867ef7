package relevance

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Adda-Baaj/trendwatch/internal/domain"

	"gopkg.in/yaml.v3"
)

// KeywordTable maps each category to the keywords that select it.
type KeywordTable map[domain.Category][]string

// Keywords is the externally loaded matching configuration.
type Keywords struct {
	Table        KeywordTable
	UrgencyTerms []string
}

var defaultTable = KeywordTable{
	domain.CategoryEconomy: {
		"economia", "mercado", "inflação", "pib", "juros", "selic", "dólar", "real",
		"bolsa", "bovespa", "nasdaq", "investimento", "banco central", "fed",
		"recessão", "crescimento", "desemprego", "exportação", "importação",
	},
	domain.CategoryGeopolitics: {
		"geopolítica", "eleição", "guerra", "conflito", "diplomacia", "otan", "onu",
		"china", "estados unidos", "rússia", "política internacional", "sanções",
		"acordo", "tratado", "presidente", "governo", "parlamento", "congresso",
	},
	domain.CategoryMarkets: {
		"ações", "commodities", "petróleo", "ouro", "crypto", "bitcoin", "ethereum",
		"forex", "câmbio", "trading", "hedge fund", "ipo", "fusão", "aquisição",
	},
}

var defaultUrgencyTerms = []string{
	"quebra", "crash", "crise", "emergência", "urgente",
	"histórico", "recorde", "máxima", "mínima", "alerta",
}

// DefaultKeywords returns a copy of the built-in keyword configuration.
func DefaultKeywords() Keywords {
	table := make(KeywordTable, len(defaultTable))
	for cat, kws := range defaultTable {
		table[cat] = append([]string(nil), kws...)
	}
	return Keywords{
		Table:        table.normalized(),
		UrgencyTerms: normalizeTerms(defaultUrgencyTerms),
	}
}

type keywordsFile struct {
	Categories   map[string][]string `yaml:"categories"`
	UrgencyTerms []string            `yaml:"urgency_terms"`
}

// LoadKeywords reads a YAML keyword file. Missing urgency terms fall back to the defaults.
func LoadKeywords(path string) (Keywords, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Keywords{}, errors.New("keywords file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("read keywords file: %w", err)
	}
	return ParseKeywords(raw)
}

// ParseKeywords decodes YAML keyword configuration.
func ParseKeywords(raw []byte) (Keywords, error) {
	var f keywordsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Keywords{}, fmt.Errorf("decode keywords: %w", err)
	}
	if len(f.Categories) == 0 {
		return Keywords{}, errors.New("keywords file contains no categories")
	}

	table := make(KeywordTable, len(f.Categories))
	for name, kws := range f.Categories {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return Keywords{}, errors.New("keywords file contains an empty category name")
		}
		table[domain.Category(name)] = kws
	}

	kw := Keywords{Table: table.normalized(), UrgencyTerms: normalizeTerms(f.UrgencyTerms)}
	if len(kw.UrgencyTerms) == 0 {
		kw.UrgencyTerms = normalizeTerms(defaultUrgencyTerms)
	}
	return kw, nil
}

// Categories returns the table's categories, known ones first in canonical order.
func (t KeywordTable) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(t))
	known := make(map[domain.Category]struct{})
	for _, c := range domain.AllCategories() {
		known[c] = struct{}{}
		if _, ok := t[c]; ok {
			out = append(out, c)
		}
	}
	var extra []domain.Category
	for c := range t {
		if _, ok := known[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// normalized folds every keyword and drops blanks and repeats.
func (t KeywordTable) normalized() KeywordTable {
	out := make(KeywordTable, len(t))
	for cat, kws := range t {
		out[cat] = normalizeTerms(kws)
	}
	return out
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = fold(term)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
