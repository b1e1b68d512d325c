package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

func newTestApp() *cli.App {
	app := &cli.App{
		Name:           "srcfast",
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}},
			&cli.StringSliceFlag{Name: "include"},
			&cli.StringSliceFlag{Name: "exclude"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
			&cli.BoolFlag{Name: "quiet"},
		},
		Commands: []*cli.Command{
			{Name: "index", Flags: []cli.Flag{&cli.BoolFlag{Name: "watch"}}, Action: indexCommand},
			{Name: "search", Flags: []cli.Flag{
				&cli.StringFlag{Name: "file-regex"},
				&cli.BoolFlag{Name: "json", Aliases: []string{"j"}},
			}, Action: searchCommand},
			{Name: "search-paths", Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Aliases: []string{"j"}},
			}, Action: searchPathsCommand},
		},
	}
	return app
}

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc handleRequest() {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return root
}

func TestIndexThenSearchRoundTrip(t *testing.T) {
	root := setupProject(t)

	app := newTestApp()
	if err := app.Run([]string{"srcfast", "--root", root, "--quiet", "index"}); err != nil {
		t.Fatalf("index: %v", err)
	}

	var out bytes.Buffer
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	app = newTestApp()
	runErr := app.Run([]string{"srcfast", "--root", root, "--quiet", "search", "--json", "handleRequest"})
	w.Close()
	os.Stdout = oldStdout
	out.ReadFrom(r)

	if runErr != nil {
		t.Fatalf("search: %v", runErr)
	}
	if !bytes.Contains(out.Bytes(), []byte("main.go")) {
		t.Errorf("expected search output to mention main.go, got %s", out.String())
	}
}

func TestSearchTooShortQueryExitsWithUserError(t *testing.T) {
	root := setupProject(t)

	app := newTestApp()
	if err := app.Run([]string{"srcfast", "--root", root, "--quiet", "index"}); err != nil {
		t.Fatalf("index: %v", err)
	}

	app = newTestApp()
	err := app.Run([]string{"srcfast", "--root", root, "--quiet", "search", "ab"})
	if err == nil {
		t.Fatalf("expected an error for a too-short query")
	}

	var ec *exitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("expected an *exitCoder, got %T: %v", err, err)
	}
	if ec.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", ec.ExitCode())
	}
}

func TestSearchMissingArgExitsWithUserError(t *testing.T) {
	root := setupProject(t)

	app := newTestApp()
	err := app.Run([]string{"srcfast", "--root", root, "--quiet", "search"})
	if err == nil {
		t.Fatalf("expected an error for a missing query argument")
	}

	var ec *exitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("expected an *exitCoder, got %T: %v", err, err)
	}
	if ec.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", ec.ExitCode())
	}
}
