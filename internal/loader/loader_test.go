package loader

import (
	"path/filepath"
	"testing"

	"avenir/internal/ast"
	"avenir/internal/bytecode"
	"avenir/internal/codegen"
	"avenir/internal/token"
)

func sampleModule(t *testing.T) *bytecode.Module {
	t.Helper()
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.ReturnStmt{Result: &ast.BinaryExpr{
				Op:    token.Plus,
				Left:  &ast.NumberLiteral{Value: 1},
				Right: &ast.NumberLiteral{Value: 2},
			}},
		},
	}
	mod, err := codegen.Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return mod
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "modules.db")
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	mod := sampleModule(t)
	hash, err := s.Save(mod)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}

	loaded, err := s.Load(hash)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Functions) != len(mod.Functions) {
		t.Fatalf("function count = %d, want %d", len(loaded.Functions), len(mod.Functions))
	}
	if loaded.MainIndex != mod.MainIndex {
		t.Fatalf("main index = %d, want %d", loaded.MainIndex, mod.MainIndex)
	}
}

func TestContentHashIsDeterministic(t *testing.T) {
	mod := sampleModule(t)
	h1, err := ContentHash(mod)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	h2, err := ContentHash(sampleModule(t))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s != %s", h1, h2)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "modules.db")
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	mod := sampleModule(t)
	h1, err := s.Save(mod)
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	h2, err := s.Save(mod)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected same hash across repeat saves, got %s and %s", h1, h2)
	}
}

func TestLoadMissingReturnsErrModuleNotFound(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "modules.db")
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Load("deadbeef"); err != ErrModuleNotFound {
		t.Fatalf("Load missing hash: got %v, want ErrModuleNotFound", err)
	}
}

func TestOpenRejectsUnsupportedScheme(t *testing.T) {
	if _, err := Open("mysql://localhost/avenir"); err == nil {
		t.Fatal("expected error for unsupported dsn scheme")
	}
}
