package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"
	"github.com/Adda-Baaj/trendwatch/pkg/providers"
)

func articlePage(paragraphs int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Página</title>`)
	b.WriteString(`<meta property="og:title" content="Titulo OG">`)
	b.WriteString(`<meta property="og:description" content="Descricao OG">`)
	b.WriteString(`<meta property="og:image" content="/img/capa.jpg">`)
	b.WriteString(`</head><body><article>`)
	for i := range paragraphs {
		fmt.Fprintf(&b, "<p>Paragrafo %d  sobre   juros.</p>", i+1)
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

func TestParsePageTakesFirstFiveParagraphs(t *testing.T) {
	pc, err := parsePage([]byte(articlePage(7)), DefaultContentSelectors)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := "Paragrafo 1 sobre juros. Paragrafo 2 sobre juros. Paragrafo 3 sobre juros. Paragrafo 4 sobre juros. Paragrafo 5 sobre juros."
	if pc.Body != want {
		t.Fatalf("body = %q", pc.Body)
	}
	if pc.Title != "Titulo OG" || pc.Description != "Descricao OG" || pc.ImageURL != "/img/capa.jpg" {
		t.Fatalf("meta = %+v", pc)
	}
}

func TestParsePageUsesFirstMatchingSelector(t *testing.T) {
	html := `<html><body><div class="content"><p>Primeiro bloco</p></div><main><p>Outro</p></main></body></html>`
	pc, err := parsePage([]byte(html), []string{".missing p", ".content p", "main p"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pc.Body != "Primeiro bloco" {
		t.Fatalf("body = %q", pc.Body)
	}
}

func TestEnrich(t *testing.T) {
	long := "<html><body><article><p>" + strings.Repeat("á", 800) + "</p></article></body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			_, _ = w.Write([]byte(articlePage(2)))
		case "/long":
			_, _ = w.Write([]byte(long))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := NewScraper(httpclient.NewRestyClient(5*time.Second), nil)
	in := []domain.Article{
		{ProviderID: "g1", Title: "Juros sobem no Brasil", URL: srv.URL + "/a"},
		{ProviderID: "g1", Title: "Pagina quebrada aqui", URL: srv.URL + "/broken"},
		{ProviderID: "g1", Title: "Texto muito longo", URL: srv.URL + "/long"},
	}

	out := s.Enrich(context.Background(), providers.Provider{ID: "g1"}, in)
	if len(out) != len(in) {
		t.Fatalf("expected %d articles, got %d", len(in), len(out))
	}

	first := out[0]
	if first.Title != "Juros sobem no Brasil" {
		t.Errorf("listing title should win, got %q", first.Title)
	}
	if first.Description != "Descricao OG" {
		t.Errorf("description = %q", first.Description)
	}
	if first.ImageURL != srv.URL+"/img/capa.jpg" {
		t.Errorf("image = %q", first.ImageURL)
	}
	if first.Body != "Paragrafo 1 sobre juros. Paragrafo 2 sobre juros." {
		t.Errorf("body = %q", first.Body)
	}

	if out[1].Body != "" || out[1].Title != in[1].Title {
		t.Errorf("failed page should keep listing record, got %+v", out[1])
	}

	if n := utf8.RuneCountInString(out[2].Body); n != maxBodyRunes {
		t.Errorf("body runes = %d, want %d", n, maxBodyRunes)
	}
}

func TestEnrichCanceledContextKeepsOriginals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := []domain.Article{{ProviderID: "g1", Title: "Sem rede", URL: "http://127.0.0.1:1/x"}}
	out := NewScraper(httpclient.NewRestyClient(time.Second), nil).Enrich(ctx, providers.Provider{ID: "g1"}, in)
	if len(out) != 1 || out[0].Title != "Sem rede" || out[0].Body != "" {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("ação", 2); got != "aç" {
		t.Fatalf("got %q", got)
	}
	if got := truncateRunes("abc", 5); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
