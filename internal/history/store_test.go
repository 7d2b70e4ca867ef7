package history

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "https://g1.globo.com/economia/noticia.ghtml", "https://g1.globo.com/economia/noticia.ghtml"},
		{"utm and fragment", "https://g1.globo.com/a?utm_source=wa#topo", "https://g1.globo.com/a"},
		{"uppercase host", "HTTPS://WWW.Reuters.COM/world/", "https://www.reuters.com/world"},
		{"tracking params", "https://infomoney.com.br/?fbclid=x&gclid=y&id=7", "https://infomoney.com.br/?id=7"},
		{"semicolon pairs kept", "https://g1.globo.com/noticia?id=1;v=2", "https://g1.globo.com/noticia?id=1;v=2"},
		{"bad escape kept", "https://g1.globo.com/busca?q=100%zz&utm_source=wa", "https://g1.globo.com/busca?q=100%zz"},
		{"pair order kept", "https://valor.com.br/a?b=2&utm_medium=x&a=1", "https://valor.com.br/a?b=2&a=1"},
		{"escaped tracking key", "https://valor.com.br/a?utm%5Fsource=x&id=9", "https://valor.com.br/a?id=9"},
		{"empty", "  ", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NormalizeURL(c.in); got != c.want {
				t.Fatalf("NormalizeURL(%q) = %q; want %q", c.in, got, c.want)
			}
		})
	}
}

func TestArticleKeyIgnoresTrackingNoise(t *testing.T) {
	a := ArticleKey("G1", "https://g1.globo.com/x?utm_medium=social")
	b := ArticleKey("g1", "https://g1.globo.com/x/")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if ArticleKey("reuters", "https://g1.globo.com/x") == a {
		t.Fatal("keys from different sources must differ")
	}
}

func TestArticleKeyKeepsDistinctQueries(t *testing.T) {
	pairs := [][2]string{
		{"https://g1.globo.com/noticia?id=1;v=2", "https://g1.globo.com/noticia?id=3;v=4"},
		{"https://g1.globo.com/busca?q=%zz", "https://g1.globo.com/busca?q=%zy"},
	}
	for _, p := range pairs {
		if ArticleKey("g1", p[0]) == ArticleKey("g1", p[1]) {
			t.Errorf("%q and %q share key %q", p[0], p[1], ArticleKey("g1", p[0]))
		}
	}
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := OpenBolt(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { bs.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bs,
	}
}

func TestClaimThenSeen(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			seen, err := s.Seen(ctx, "k1")
			if err != nil || seen {
				t.Fatalf("fresh key seen=%v err=%v", seen, err)
			}
			ok, err := s.Claim(ctx, "k1")
			if err != nil || !ok {
				t.Fatalf("first claim ok=%v err=%v", ok, err)
			}
			ok, err = s.Claim(ctx, "k1")
			if err != nil || ok {
				t.Fatalf("second claim ok=%v err=%v", ok, err)
			}
			seen, err = s.Seen(ctx, "k1")
			if err != nil || !seen {
				t.Fatalf("claimed key seen=%v err=%v", seen, err)
			}
		})
	}
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.Claim(ctx, "shared")
					if err != nil {
						t.Errorf("claim: %v", err)
						return
					}
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins.Load())
			}
		})
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Claim(ctx, "old"); err != nil {
				t.Fatalf("claim: %v", err)
			}
			n, err := s.Prune(ctx, time.Now().Add(-time.Hour))
			if err != nil || n != 0 {
				t.Fatalf("prune past cutoff n=%d err=%v", n, err)
			}
			n, err = s.Prune(ctx, time.Now().Add(time.Hour))
			if err != nil || n != 1 {
				t.Fatalf("prune future cutoff n=%d err=%v", n, err)
			}
			if seen, _ := s.Seen(ctx, "old"); seen {
				t.Fatal("pruned key still seen")
			}
		})
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "h.db")
	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Claim(ctx, "persist"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	s.Close()

	s, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if seen, _ := s.Seen(ctx, "persist"); !seen {
		t.Fatal("key lost after reopen")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "etcd"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	s, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("default backend = %T", s)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	if _, err := s.Claim(context.Background(), "x"); err != ErrClosed {
		t.Fatalf("err = %v", err)
	}
}
